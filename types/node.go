package types

import (
	"net"
	"strconv"
)

// Endpoint is the address of a node
type Endpoint struct {
	Host string
	Port int
}

// ParseEndpoint parses a host:port string
func ParseEndpoint(addr string) (Endpoint, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return Endpoint{}, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Host: host, Port: p}, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
