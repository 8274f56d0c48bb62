package pool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyNodeFilter = errors.New("empty node filter, pass nil to accept any node")
	ErrNoEligibleNode  = errors.New("no configured node matches the filter")
	ErrUnknownClient   = errors.New("client does not belong to this pool")
	ErrStreamNotFound  = errors.New("stream not found")
	ErrNoLeader        = errors.New("stream has no leader")
)

// ConfigError is a node whose connection advertises another host than its name
type ConfigError struct {
	Node       string
	Advertised string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("node %q advertises itself as %q, check the cluster configuration", e.Node, e.Advertised)
}

// AttemptsExceededError is returned when no connection reached one of Nodes
type AttemptsExceededError struct {
	Nodes    []string
	Attempts int
}

func (e *AttemptsExceededError) Error() string {
	return fmt.Sprintf("no connection to any of [%s] after %d attempts", strings.Join(e.Nodes, ", "), e.Attempts)
}
