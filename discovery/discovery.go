// Package discovery keeps a pool's node list in sync with a serf gossip cluster
package discovery

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"sync"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/types"
	"github.com/CefBoud/monstream/utils"
	"github.com/google/uuid"
	"github.com/hashicorp/serf/serf"
)

const (
	// serfEventChSize is the size of the buffered channel to get Serf
	// events. If this is exhausted we will block Serf and Memberlist.
	serfEventChSize = 2048

	// member tags
	RoleTag           = "role"
	AdvertisedHostTag = "advertised_host"
	StreamAddrTag     = "stream_addr"

	// RoleStream marks members serving streams, other members are ignored
	RoleStream = "stream"
	roleClient = "client"
)

// Registrar receives the stream nodes found in the gossip cluster.
// pool.Cluster implements it.
type Registrar interface {
	AddNode(name string, endpoint types.Endpoint)
	RemoveNode(name string)
}

// Config of a Watcher
type Config struct {
	// NodeName defaults to client-<uuid>
	NodeName string
	// BindAddress is the gossip host:port, port 0 picks a free one
	BindAddress string
	// JoinAddresses are existing members to contact
	JoinAddresses []string
	// SnapshotDir keeps the serf snapshot across restarts when set
	SnapshotDir string
	// Announce, when set, makes this member a stream node reachable at
	// Announce under the name AdvertisedHost
	Announce       *types.Endpoint
	AdvertisedHost string
	// SerfConfig defaults to serf.DefaultConfig()
	SerfConfig *serf.Config
}

// Watcher translates membership events into Registrar calls
type Watcher struct {
	registrar Registrar
	serf      *serf.Serf
	eventCh   chan serf.Event
	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New joins the gossip cluster and starts watching it
func New(cfg Config, registrar Registrar) (*Watcher, error) {
	w := &Watcher{
		registrar: registrar,
		eventCh:   make(chan serf.Event, serfEventChSize),
		shutdown:  make(chan struct{}),
	}
	conf, err := w.serfConfig(cfg)
	if err != nil {
		return nil, err
	}
	w.serf, err = serf.Create(conf)
	if err != nil {
		return nil, fmt.Errorf("could not create serf: %w", err)
	}
	w.wg.Add(1)
	go w.handleSerfEvents()

	if len(cfg.JoinAddresses) > 0 {
		log.Info("joining serf nodes: %v", cfg.JoinAddresses)
		n, err := w.serf.Join(cfg.JoinAddresses, true)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("could not join %v: %w", cfg.JoinAddresses, err)
		}
		log.Info("serf join: successfully contacted %v node(s)", n)
	}
	return w, nil
}

func (w *Watcher) serfConfig(cfg Config) (*serf.Config, error) {
	conf := cfg.SerfConfig
	if conf == nil {
		conf = serf.DefaultConfig()
	}
	conf.Init()
	conf.NodeName = cfg.NodeName
	if conf.NodeName == "" {
		conf.NodeName = "client-" + uuid.NewString()
	}
	bindAddress := cfg.BindAddress
	if bindAddress == "" {
		bindAddress = "127.0.0.1:0"
	}
	bindIP, bindPort, err := net.SplitHostPort(bindAddress)
	if err != nil {
		return nil, err
	}
	log.Debug("serf bindIP=%v bindPort=%v", bindIP, bindPort)
	conf.MemberlistConfig.BindAddr = bindIP
	conf.MemberlistConfig.BindPort, err = strconv.Atoi(bindPort)
	if err != nil {
		return nil, err
	}

	conf.Tags[RoleTag] = roleClient
	if cfg.Announce != nil {
		conf.Tags[RoleTag] = RoleStream
		conf.Tags[StreamAddrTag] = cfg.Announce.String()
		conf.Tags[AdvertisedHostTag] = cfg.AdvertisedHost
		if cfg.AdvertisedHost == "" {
			conf.Tags[AdvertisedHostTag] = cfg.Announce.Host
		}
	}
	conf.EventCh = w.eventCh
	conf.Logger = log.StandardLogger()

	if cfg.SnapshotDir != "" {
		conf.SnapshotPath = filepath.Join(cfg.SnapshotDir, "serf-snapshot")
		if err := utils.EnsurePath(conf.SnapshotPath, false); err != nil {
			return nil, fmt.Errorf("could not create serf snapshot dir: %w", err)
		}
	}
	return conf, nil
}

// Addr is the gossip address other members can join
func (w *Watcher) Addr() string {
	m := w.serf.LocalMember()
	return net.JoinHostPort(m.Addr.String(), strconv.Itoa(int(m.Port)))
}

// Members lists the known members, whatever their role
func (w *Watcher) Members() []serf.Member {
	return w.serf.Members()
}

// Close leaves the cluster and stops watching it
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		log.Info("shutting down serf")
		if err = w.serf.Leave(); err != nil {
			log.Error("serf leave failed: %s", err)
		}
		if shutdownErr := w.serf.Shutdown(); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
		close(w.shutdown)
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) handleSerfEvents() {
	defer w.wg.Done()
	for {
		select {
		case e := <-w.eventCh:
			w.handleEvent(e)
		case <-w.shutdown:
			return
		}
	}
}

func (w *Watcher) handleEvent(e serf.Event) {
	me, ok := e.(serf.MemberEvent)
	if !ok {
		return
	}
	log.Debug("serf event %v for %d member(s)", e.EventType(), len(me.Members))
	for _, m := range me.Members {
		if m.Tags[RoleTag] != RoleStream {
			continue
		}
		name := m.Tags[AdvertisedHostTag]
		if name == "" {
			name = m.Name
		}
		switch e.EventType() {
		case serf.EventMemberJoin, serf.EventMemberUpdate:
			endpoint, err := types.ParseEndpoint(m.Tags[StreamAddrTag])
			if err != nil {
				log.Warn("member %s has an invalid %s tag %q: %v", m.Name, StreamAddrTag, m.Tags[StreamAddrTag], err)
				continue
			}
			log.Info("stream node %s joined at %s", name, endpoint)
			w.registrar.AddNode(name, endpoint)
		case serf.EventMemberLeave, serf.EventMemberFailed, serf.EventMemberReap:
			log.Info("stream node %s left (%v)", name, e.EventType())
			w.registrar.RemoveNode(name)
		}
	}
}
