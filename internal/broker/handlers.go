package broker

import (
	"sort"
	"strconv"
	"strings"

	log "github.com/CefBoud/monstream/logging"
	"github.com/CefBoud/monstream/protocol"
)

// APIDispatcher maps each key a client sends to its name and handler
var APIDispatcher = map[uint16]struct {
	Name    string
	Handler func(b *Broker, c *Conn, frame []byte) []byte
}{
	protocol.PeerPropertiesKey:          {Name: "PeerProperties", Handler: (*Broker).handlePeerProperties},
	protocol.SaslHandshakeKey:           {Name: "SaslHandshake", Handler: (*Broker).handleSaslHandshake},
	protocol.SaslAuthenticateKey:        {Name: "SaslAuthenticate", Handler: (*Broker).handleSaslAuthenticate},
	protocol.TuneKey:                    {Name: "Tune", Handler: (*Broker).handleTune},
	protocol.OpenKey:                    {Name: "Open", Handler: (*Broker).handleOpen},
	protocol.CloseKey:                   {Name: "Close", Handler: (*Broker).handleClose},
	protocol.HeartbeatKey:               {Name: "Heartbeat", Handler: (*Broker).handleHeartbeat},
	protocol.DeclarePublisherKey:        {Name: "DeclarePublisher", Handler: (*Broker).handleDeclarePublisher},
	protocol.PublishKey:                 {Name: "Publish", Handler: (*Broker).handlePublish},
	protocol.QueryPublisherSequenceKey:  {Name: "QueryPublisherSequence", Handler: (*Broker).handleQueryPublisherSequence},
	protocol.DeletePublisherKey:         {Name: "DeletePublisher", Handler: (*Broker).handleDeletePublisher},
	protocol.SubscribeKey:               {Name: "Subscribe", Handler: (*Broker).handleSubscribe},
	protocol.CreditKey:                  {Name: "Credit", Handler: (*Broker).handleCredit},
	protocol.StoreOffsetKey:             {Name: "StoreOffset", Handler: (*Broker).handleStoreOffset},
	protocol.QueryOffsetKey:             {Name: "QueryOffset", Handler: (*Broker).handleQueryOffset},
	protocol.UnsubscribeKey:             {Name: "Unsubscribe", Handler: (*Broker).handleUnsubscribe},
	protocol.CreateStreamKey:            {Name: "CreateStream", Handler: (*Broker).handleCreateStream},
	protocol.DeleteStreamKey:            {Name: "DeleteStream", Handler: (*Broker).handleDeleteStream},
	protocol.MetadataKey:                {Name: "Metadata", Handler: (*Broker).handleMetadata},
	protocol.RouteKey:                   {Name: "Route", Handler: (*Broker).handleRoute},
	protocol.PartitionsKey:              {Name: "Partitions", Handler: (*Broker).handlePartitions},
	protocol.ExchangeCommandVersionsKey: {Name: "ExchangeCommandVersions", Handler: (*Broker).handleExchangeCommandVersions},
	protocol.StreamStatsKey:             {Name: "StreamStats", Handler: (*Broker).handleStreamStats},
}

// respond frames m as the response to the request held in frame
func respond(frame []byte, code uint16, m protocol.Message) []byte {
	_, corrID, err := protocol.ParseRequestHeader(frame)
	if err != nil {
		log.Error("cannot answer a malformed request: %v", err)
		return nil
	}
	return protocol.EncodeResponse(corrID, code, m)
}

func status(frame []byte, key, code uint16) []byte {
	return respond(frame, code, protocol.EmptyResponse{RequestKey: key})
}

func (b *Broker) handlePeerProperties(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodePeerPropertiesRequest(frame)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.ClientProperties = req.Properties
	c.mu.Unlock()
	return respond(frame, protocol.CodeOK, protocol.PeerPropertiesResponse{Properties: map[string]string{
		"product": "monstream-broker",
		"version": "1",
	}})
}

func (b *Broker) handleSaslHandshake(c *Conn, frame []byte) []byte {
	return respond(frame, protocol.CodeOK, protocol.SaslHandshakeResponse{Mechanisms: b.opts.Mechanisms})
}

func (b *Broker) handleSaslAuthenticate(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeSaslAuthenticateRequest(frame)
	if err != nil {
		return nil
	}
	if req.Mechanism != protocol.PlainMechanism {
		return status(frame, protocol.SaslAuthenticateKey, protocol.CodeSaslMechanismNotSupported)
	}
	user, password, ok := req.Credentials()
	if !ok || user != b.opts.Username || password != b.opts.Password {
		return status(frame, protocol.SaslAuthenticateKey, protocol.CodeAuthenticationFailure)
	}
	if err := c.Push(status(frame, protocol.SaslAuthenticateKey, protocol.CodeOK)); err != nil {
		return nil
	}
	if !b.opts.NoTune {
		c.Push(protocol.EncodeCommand(protocol.Tune{FrameMax: b.opts.FrameMax, Heartbeat: b.opts.Heartbeat}))
	}
	return nil
}

func (b *Broker) handleTune(c *Conn, frame []byte) []byte {
	t, err := protocol.DecodeTune(frame)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.clientTune = t
	c.mu.Unlock()
	c.tuneOnce.Do(func() { close(c.tuned) })
	return nil
}

func (b *Broker) handleOpen(c *Conn, frame []byte) []byte {
	if _, err := protocol.DecodeOpenRequest(frame); err != nil {
		return nil
	}
	response := respond(frame, protocol.CodeOK, protocol.OpenResponse{Properties: map[string]string{
		"advertised_host": c.AdvertisedHost,
		"advertised_port": strconv.Itoa(b.port),
	}})
	if err := c.Push(response); err != nil {
		return nil
	}
	select {
	case b.opened <- c:
	default:
	}
	return nil
}

func (b *Broker) handleClose(c *Conn, frame []byte) []byte {
	if err := c.Push(status(frame, protocol.CloseKey, protocol.CodeOK)); err != nil {
		return nil
	}
	c.closing.Store(true)
	return nil
}

func (b *Broker) handleHeartbeat(c *Conn, frame []byte) []byte {
	return nil
}

func (b *Broker) handleDeclarePublisher(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeDeclarePublisherRequest(frame)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	_, exists := b.streams[req.Stream]
	b.mu.Unlock()
	if !exists {
		return status(frame, protocol.DeclarePublisherKey, protocol.CodeStreamDoesNotExist)
	}
	c.mu.Lock()
	c.publishers[req.PublisherID] = req.Stream
	c.mu.Unlock()
	return status(frame, protocol.DeclarePublisherKey, protocol.CodeOK)
}

func (b *Broker) handlePublish(c *Conn, frame []byte) []byte {
	p, err := protocol.DecodePublish(frame)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	stream, ok := c.publishers[p.PublisherID]
	c.mu.Unlock()
	if !ok {
		failed := protocol.PublishError{PublisherID: p.PublisherID}
		for _, e := range p.Entries {
			failed.Errors = append(failed.Errors, protocol.PublishingError{PublishingID: e.PublishingID, Code: protocol.CodePublisherDoesNotExist})
		}
		return protocol.EncodeCommand(failed)
	}

	confirm := protocol.PublishConfirm{PublisherID: p.PublisherID}
	entries := make([]protocol.Entry, 0, len(p.Entries))
	for _, e := range p.Entries {
		confirm.PublishingIDs = append(confirm.PublishingIDs, e.PublishingID)
		entries = append(entries, e.Entry)
	}
	b.mu.Lock()
	l, ok := b.streams[stream]
	if ok {
		l.append(entries)
	}
	b.mu.Unlock()
	c.Push(protocol.EncodeCommand(confirm))
	b.flushStream(stream)
	return nil
}

func (b *Broker) handleQueryPublisherSequence(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeQueryPublisherSequenceRequest(frame)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	seq := b.sequences[req.Reference+"/"+req.Stream]
	b.mu.Unlock()
	return respond(frame, protocol.CodeOK, protocol.SequenceResponse{RequestKey: protocol.QueryPublisherSequenceKey, Value: seq})
}

// SetSequence sets the sequence returned for a publisher reference on a stream
func (b *Broker) SetSequence(reference, stream string, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequences[reference+"/"+stream] = seq
}

func (b *Broker) handleDeletePublisher(c *Conn, frame []byte) []byte {
	id, err := protocol.DecodeIDRequest(frame)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	_, ok := c.publishers[id]
	delete(c.publishers, id)
	c.mu.Unlock()
	if !ok {
		return status(frame, protocol.DeletePublisherKey, protocol.CodePublisherDoesNotExist)
	}
	return status(frame, protocol.DeletePublisherKey, protocol.CodeOK)
}

func (b *Broker) handleSubscribe(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeSubscribeRequest(frame)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	l, exists := b.streams[req.Stream]
	var start int
	if exists {
		start = l.start(req.Offset)
	}
	b.mu.Unlock()
	if !exists {
		return status(frame, protocol.SubscribeKey, protocol.CodeStreamDoesNotExist)
	}
	c.mu.Lock()
	if _, taken := c.subs[req.SubscriptionID]; taken {
		c.mu.Unlock()
		return status(frame, protocol.SubscribeKey, protocol.CodeSubscriptionIDAlreadyExists)
	}
	c.subs[req.SubscriptionID] = &subscription{id: req.SubscriptionID, stream: req.Stream, credit: int(req.Credit), next: start}
	c.mu.Unlock()
	if err := c.Push(status(frame, protocol.SubscribeKey, protocol.CodeOK)); err != nil {
		return nil
	}
	b.flushStream(req.Stream)
	return nil
}

func (b *Broker) handleCredit(c *Conn, frame []byte) []byte {
	credit, err := protocol.DecodeCredit(frame)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	sub, ok := c.subs[credit.SubscriptionID]
	if ok {
		sub.credit += int(credit.Credit)
	}
	c.mu.Unlock()
	if !ok {
		return protocol.EncodeCommand(protocol.CreditResponse{Code: protocol.CodeSubscriptionIDDoesNotExist, SubscriptionID: credit.SubscriptionID})
	}
	b.flushStream(sub.stream)
	return nil
}

// flushStream sends the chunks every subscription of stream has credit for
func (b *Broker) flushStream(stream string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.streams[stream]
	if !ok {
		return
	}
	for _, c := range b.conns {
		c.mu.Lock()
		for _, sub := range c.subs {
			if sub.stream != stream {
				continue
			}
			for sub.credit > 0 && sub.next < len(l.chunks) {
				ch := l.chunks[sub.next]
				c.Push(protocol.EncodeCommand(protocol.Deliver{
					FrameVersion:     b.opts.DeliverVersion,
					SubscriptionID:   sub.id,
					Timestamp:        ch.timestamp,
					ChunkFirstOffset: ch.firstOffset,
					Entries:          ch.entries,
				}))
				sub.credit--
				sub.next++
			}
		}
		c.mu.Unlock()
	}
}

func (b *Broker) handleStoreOffset(c *Conn, frame []byte) []byte {
	s, err := protocol.DecodeStoreOffset(frame)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	b.offsets[s.Reference+"/"+s.Stream] = s.Offset
	b.mu.Unlock()
	return nil
}

func (b *Broker) handleQueryOffset(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeQueryOffsetRequest(frame)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	offset, ok := b.offsets[req.Reference+"/"+req.Stream]
	b.mu.Unlock()
	if !ok {
		return status(frame, protocol.QueryOffsetKey, protocol.CodeNoOffset)
	}
	return respond(frame, protocol.CodeOK, protocol.SequenceResponse{RequestKey: protocol.QueryOffsetKey, Value: offset})
}

func (b *Broker) handleUnsubscribe(c *Conn, frame []byte) []byte {
	id, err := protocol.DecodeIDRequest(frame)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if !ok {
		return status(frame, protocol.UnsubscribeKey, protocol.CodeSubscriptionIDDoesNotExist)
	}
	return status(frame, protocol.UnsubscribeKey, protocol.CodeOK)
}

// CreateStream adds an empty stream
func (b *Broker) CreateStream(stream string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.streams[stream]; ok {
		return false
	}
	b.streams[stream] = &streamLog{}
	return true
}

func (b *Broker) handleCreateStream(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeCreateStreamRequest(frame)
	if err != nil {
		return nil
	}
	if !b.CreateStream(req.Stream) {
		return status(frame, protocol.CreateStreamKey, protocol.CodeStreamAlreadyExists)
	}
	return status(frame, protocol.CreateStreamKey, protocol.CodeOK)
}

// DeleteStream removes a stream and tells the connections using it
func (b *Broker) DeleteStream(stream string) bool {
	b.mu.Lock()
	_, ok := b.streams[stream]
	delete(b.streams, stream)
	conns := make([]*Conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	update := protocol.EncodeCommand(protocol.MetadataUpdate{Code: protocol.CodeStreamDoesNotExist, Stream: stream})
	for _, c := range conns {
		c.mu.Lock()
		used := false
		for _, s := range c.publishers {
			used = used || s == stream
		}
		for _, sub := range c.subs {
			used = used || sub.stream == stream
		}
		c.mu.Unlock()
		if used {
			c.Push(update)
		}
	}
	return true
}

func (b *Broker) handleDeleteStream(c *Conn, frame []byte) []byte {
	stream, err := protocol.DecodeStreamRequest(frame)
	if err != nil {
		return nil
	}
	if !b.DeleteStream(stream) {
		return status(frame, protocol.DeleteStreamKey, protocol.CodeStreamDoesNotExist)
	}
	return status(frame, protocol.DeleteStreamKey, protocol.CodeOK)
}

func (b *Broker) handleMetadata(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeMetadataRequest(frame)
	if err != nil {
		return nil
	}
	_, corrID, _ := protocol.ParseRequestHeader(frame)
	r := protocol.MetadataResponse{Brokers: []protocol.Broker{{Reference: 0, Host: c.AdvertisedHost, Port: uint32(b.port)}}}
	replicas := make([]uint16, 0, len(b.opts.Replicas))
	for i, replica := range b.opts.Replicas {
		replica.Reference = uint16(i + 1)
		r.Brokers = append(r.Brokers, replica)
		replicas = append(replicas, replica.Reference)
	}
	b.mu.Lock()
	for _, stream := range req.Streams {
		entry := protocol.StreamMetadataEntry{Stream: stream, Code: protocol.CodeOK, Replicas: replicas}
		if _, ok := b.streams[stream]; !ok {
			entry = protocol.StreamMetadataEntry{Stream: stream, Code: protocol.CodeStreamDoesNotExist, Leader: 0xFFFF}
		}
		r.Streams = append(r.Streams, entry)
	}
	b.mu.Unlock()
	return protocol.EncodeMetadataResponse(corrID, r)
}

// partitions lists the streams of a super stream, named superStream-<suffix>
func (b *Broker) partitions(superStream string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var res []string
	for stream := range b.streams {
		if strings.HasPrefix(stream, superStream+"-") {
			res = append(res, stream)
		}
	}
	sort.Strings(res)
	return res
}

func (b *Broker) handleRoute(c *Conn, frame []byte) []byte {
	req, err := protocol.DecodeRouteRequest(frame)
	if err != nil {
		return nil
	}
	var streams []string
	for _, s := range b.partitions(req.SuperStream) {
		if s == req.SuperStream+"-"+req.RoutingKey {
			streams = append(streams, s)
		}
	}
	return respond(frame, protocol.CodeOK, protocol.StreamsResponse{RequestKey: protocol.RouteKey, Streams: streams})
}

func (b *Broker) handlePartitions(c *Conn, frame []byte) []byte {
	superStream, err := protocol.DecodeStreamRequest(frame)
	if err != nil {
		return nil
	}
	return respond(frame, protocol.CodeOK, protocol.StreamsResponse{RequestKey: protocol.PartitionsKey, Streams: b.partitions(superStream)})
}

func (b *Broker) handleExchangeCommandVersions(c *Conn, frame []byte) []byte {
	if _, err := protocol.DecodeCommandVersionsRequest(frame); err != nil {
		return nil
	}
	return respond(frame, protocol.CodeOK, protocol.CommandVersionsExchange{Commands: []protocol.CommandVersion{
		{Key: protocol.DeliverKey, MinVersion: 1, MaxVersion: b.opts.DeliverVersion},
		{Key: protocol.StreamStatsKey, MinVersion: 1, MaxVersion: 1},
	}})
}

func (b *Broker) handleStreamStats(c *Conn, frame []byte) []byte {
	stream, err := protocol.DecodeStreamRequest(frame)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	l, ok := b.streams[stream]
	var stats map[string]int64
	if ok {
		stats = map[string]int64{
			"first_chunk_id":     0,
			"committed_chunk_id": int64(len(l.chunks)) - 1,
		}
	}
	b.mu.Unlock()
	if !ok {
		return status(frame, protocol.StreamStatsKey, protocol.CodeStreamDoesNotExist)
	}
	return respond(frame, protocol.CodeOK, protocol.StreamStatsResponse{Stats: stats})
}
