package client

import (
	"context"

	"github.com/CefBoud/monstream/protocol"
	"github.com/CefBoud/monstream/types"
)

func checkReference(ref string) error {
	if len(ref) > protocol.MaxReferenceLength {
		return protocol.ErrReferenceTooLong
	}
	return nil
}

// DeclarePublisher binds publisherID to stream. reference enables deduplication
// and may be empty.
func (c *Client) DeclarePublisher(ctx context.Context, publisherID uint8, reference, stream string) error {
	if err := checkReference(reference); err != nil {
		return err
	}
	_, err := c.call(ctx, protocol.DeclarePublisherRequest{PublisherID: publisherID, Reference: reference, Stream: stream})
	return err
}

// Publish sends entries for a declared publisher. Confirms and errors come
// back through the listeners.
func (c *Client) Publish(publisherID uint8, entries []protocol.PublishEntry) error {
	return c.sendCommand(protocol.Publish{PublisherID: publisherID, Entries: entries})
}

// QueryPublisherSequence returns the last publishing id stored for reference
func (c *Client) QueryPublisherSequence(ctx context.Context, reference, stream string) (uint64, error) {
	if err := checkReference(reference); err != nil {
		return 0, err
	}
	frame, err := c.call(ctx, protocol.QueryPublisherSequenceRequest{Reference: reference, Stream: stream})
	if err != nil {
		return 0, err
	}
	return protocol.DecodeSequenceResponse(frame)
}

func (c *Client) DeletePublisher(ctx context.Context, publisherID uint8) error {
	_, err := c.call(ctx, protocol.DeletePublisherRequest{PublisherID: publisherID})
	return err
}

// Subscribe starts delivering stream to subscriptionID from offset, with
// credit chunks allowed in flight
func (c *Client) Subscribe(ctx context.Context, subscriptionID uint8, stream string, offset types.Offset, credit uint16, properties map[string]string) error {
	_, err := c.call(ctx, protocol.SubscribeRequest{
		SubscriptionID: subscriptionID,
		Stream:         stream,
		Offset:         offset,
		Credit:         credit,
		Properties:     properties,
	})
	return err
}

// Credit allows credit more chunks. A failure is reported with OnCreditError.
func (c *Client) Credit(subscriptionID uint8, credit uint16) error {
	return c.sendCommand(protocol.Credit{SubscriptionID: subscriptionID, Credit: credit})
}

// StoreOffset records the offset reached by reference on stream
func (c *Client) StoreOffset(reference, stream string, offset uint64) error {
	if err := checkReference(reference); err != nil {
		return err
	}
	return c.sendCommand(protocol.StoreOffset{Reference: reference, Stream: stream, Offset: offset})
}

// QueryOffset returns the offset stored for reference on stream
func (c *Client) QueryOffset(ctx context.Context, reference, stream string) (uint64, error) {
	if err := checkReference(reference); err != nil {
		return 0, err
	}
	frame, err := c.call(ctx, protocol.QueryOffsetRequest{Reference: reference, Stream: stream})
	if err != nil {
		return 0, err
	}
	return protocol.DecodeSequenceResponse(frame)
}

func (c *Client) Unsubscribe(ctx context.Context, subscriptionID uint8) error {
	_, err := c.call(ctx, protocol.UnsubscribeRequest{SubscriptionID: subscriptionID})
	return err
}

// CreateStream creates stream with arguments such as max-length-bytes
func (c *Client) CreateStream(ctx context.Context, stream string, arguments map[string]string) error {
	_, err := c.call(ctx, protocol.CreateStreamRequest{Stream: stream, Arguments: arguments})
	return err
}

func (c *Client) DeleteStream(ctx context.Context, stream string) error {
	_, err := c.call(ctx, protocol.DeleteStreamRequest{Stream: stream})
	return err
}

// Metadata resolves the leader and replicas of streams. Streams unknown to the
// server are absent from the result.
func (c *Client) Metadata(ctx context.Context, streams []string) (map[string]protocol.StreamMetadata, error) {
	frame, err := c.call(ctx, protocol.MetadataRequest{Streams: streams})
	if err != nil {
		return nil, err
	}
	res, err := protocol.DecodeMetadataResponse(frame)
	if err != nil {
		return nil, err
	}
	return res.Resolve(), nil
}

// Route returns the streams of superStream routingKey goes to
func (c *Client) Route(ctx context.Context, routingKey, superStream string) ([]string, error) {
	frame, err := c.call(ctx, protocol.RouteRequest{RoutingKey: routingKey, SuperStream: superStream})
	if err != nil {
		return nil, err
	}
	return protocol.DecodeStreamsResponse(frame)
}

// Partitions returns the streams of superStream
func (c *Client) Partitions(ctx context.Context, superStream string) ([]string, error) {
	frame, err := c.call(ctx, protocol.PartitionsRequest{SuperStream: superStream})
	if err != nil {
		return nil, err
	}
	return protocol.DecodeStreamsResponse(frame)
}

// ExchangeCommandVersions advertises the versions this client handles and
// returns those of the server
func (c *Client) ExchangeCommandVersions(ctx context.Context) ([]protocol.CommandVersion, error) {
	frame, err := c.call(ctx, protocol.CommandVersionsExchange{Commands: protocol.ClientCommandVersions})
	if err != nil {
		return nil, err
	}
	res, err := protocol.DecodeCommandVersionsResponse(frame)
	if err != nil {
		return nil, err
	}
	return res.Commands, nil
}

// StreamStats returns the counters of stream
func (c *Client) StreamStats(ctx context.Context, stream string) (map[string]int64, error) {
	frame, err := c.call(ctx, protocol.StreamStatsRequest{Stream: stream})
	if err != nil {
		return nil, err
	}
	res, err := protocol.DecodeStreamStatsResponse(frame)
	if err != nil {
		return nil, err
	}
	return res.Stats, nil
}
