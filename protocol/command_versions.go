package protocol

import "github.com/CefBoud/monstream/serde"

// CommandVersion is the version range of a command
type CommandVersion struct {
	Key        uint16
	MinVersion uint16
	MaxVersion uint16
}

// ClientCommandVersions is what the client advertises: every command at
// version 1, deliver up to 2
var ClientCommandVersions = []CommandVersion{
	{Key: DeclarePublisherKey, MinVersion: 1, MaxVersion: 1},
	{Key: PublishKey, MinVersion: 1, MaxVersion: 1},
	{Key: PublishConfirmKey, MinVersion: 1, MaxVersion: 1},
	{Key: PublishErrorKey, MinVersion: 1, MaxVersion: 1},
	{Key: QueryPublisherSequenceKey, MinVersion: 1, MaxVersion: 1},
	{Key: DeletePublisherKey, MinVersion: 1, MaxVersion: 1},
	{Key: SubscribeKey, MinVersion: 1, MaxVersion: 1},
	{Key: DeliverKey, MinVersion: 1, MaxVersion: 2},
	{Key: CreditKey, MinVersion: 1, MaxVersion: 1},
	{Key: StoreOffsetKey, MinVersion: 1, MaxVersion: 1},
	{Key: QueryOffsetKey, MinVersion: 1, MaxVersion: 1},
	{Key: UnsubscribeKey, MinVersion: 1, MaxVersion: 1},
	{Key: CreateStreamKey, MinVersion: 1, MaxVersion: 1},
	{Key: DeleteStreamKey, MinVersion: 1, MaxVersion: 1},
	{Key: MetadataKey, MinVersion: 1, MaxVersion: 1},
	{Key: MetadataUpdateKey, MinVersion: 1, MaxVersion: 1},
	{Key: PeerPropertiesKey, MinVersion: 1, MaxVersion: 1},
	{Key: SaslHandshakeKey, MinVersion: 1, MaxVersion: 1},
	{Key: SaslAuthenticateKey, MinVersion: 1, MaxVersion: 1},
	{Key: TuneKey, MinVersion: 1, MaxVersion: 1},
	{Key: OpenKey, MinVersion: 1, MaxVersion: 1},
	{Key: CloseKey, MinVersion: 1, MaxVersion: 1},
	{Key: HeartbeatKey, MinVersion: 1, MaxVersion: 1},
	{Key: RouteKey, MinVersion: 1, MaxVersion: 1},
	{Key: PartitionsKey, MinVersion: 1, MaxVersion: 1},
	{Key: ConsumerUpdateKey, MinVersion: 1, MaxVersion: 1},
	{Key: ExchangeCommandVersionsKey, MinVersion: 1, MaxVersion: 1},
	{Key: StreamStatsKey, MinVersion: 1, MaxVersion: 1},
}

// CommandVersionsExchange is both the request and the response body
type CommandVersionsExchange struct {
	Commands []CommandVersion
}

func (c CommandVersionsExchange) Key() uint16     { return ExchangeCommandVersionsKey }
func (c CommandVersionsExchange) Version() uint16 { return 1 }
func (c CommandVersionsExchange) Encode(e *serde.Encoder) {
	e.PutArrayLen(len(c.Commands))
	for _, cv := range c.Commands {
		e.PutInt16(cv.Key)
		e.PutInt16(cv.MinVersion)
		e.PutInt16(cv.MaxVersion)
	}
}

func decodeCommandVersions(d *serde.Decoder) []CommandVersion {
	n := d.ArrayLen()
	res := make([]CommandVersion, 0, n)
	for i := 0; i < n && d.Err() == nil; i++ {
		res = append(res, CommandVersion{Key: d.UInt16(), MinVersion: d.UInt16(), MaxVersion: d.UInt16()})
	}
	return res
}

// DecodeCommandVersionsRequest parses the versions advertised by a client
func DecodeCommandVersionsRequest(frame []byte) (CommandVersionsExchange, error) {
	var c CommandVersionsExchange
	err := decodeRequest(frame, func(d *serde.Decoder) {
		c.Commands = decodeCommandVersions(d)
	})
	return c, err
}

// DecodeCommandVersionsResponse parses the versions advertised by the server
func DecodeCommandVersionsResponse(frame []byte) (CommandVersionsExchange, error) {
	var c CommandVersionsExchange
	err := decodeResponse(frame, func(d *serde.Decoder) {
		c.Commands = decodeCommandVersions(d)
	})
	return c, err
}
