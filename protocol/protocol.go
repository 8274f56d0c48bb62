package protocol

import "github.com/CefBoud/monstream/serde"

// Command keys. The response to a command is sent with ResponseFlag set on the key.
const (
	DeclarePublisherKey        = uint16(0x0001)
	PublishKey                 = uint16(0x0002)
	PublishConfirmKey          = uint16(0x0003)
	PublishErrorKey            = uint16(0x0004)
	QueryPublisherSequenceKey  = uint16(0x0005)
	DeletePublisherKey         = uint16(0x0006)
	SubscribeKey               = uint16(0x0007)
	DeliverKey                 = uint16(0x0008)
	CreditKey                  = uint16(0x0009)
	StoreOffsetKey             = uint16(0x000a)
	QueryOffsetKey             = uint16(0x000b)
	UnsubscribeKey             = uint16(0x000c)
	CreateStreamKey            = uint16(0x000d)
	DeleteStreamKey            = uint16(0x000e)
	MetadataKey                = uint16(0x000f)
	MetadataUpdateKey          = uint16(0x0010)
	PeerPropertiesKey          = uint16(0x0011)
	SaslHandshakeKey           = uint16(0x0012)
	SaslAuthenticateKey        = uint16(0x0013)
	TuneKey                    = uint16(0x0014)
	OpenKey                    = uint16(0x0015)
	CloseKey                   = uint16(0x0016)
	HeartbeatKey               = uint16(0x0017)
	RouteKey                   = uint16(0x0018)
	PartitionsKey              = uint16(0x0019)
	ConsumerUpdateKey          = uint16(0x001a)
	ExchangeCommandVersionsKey = uint16(0x001b)
	StreamStatsKey             = uint16(0x001c)
)

// Credit and metadata responses are response shaped but need to be recognized by
// their full key: they carry no status code in the usual place.
const (
	CreditResponseKey   = CreditKey | serde.ResponseFlag
	MetadataResponseKey = MetadataKey | serde.ResponseFlag
)

// MaxCorrelationID is the last correlation id before the counter wraps
const MaxCorrelationID = uint32(0xFFFFFFFF)

// ResponseHeaderSize is the frame header, the correlation id and the status code
const ResponseHeaderSize = serde.HeaderSize + 4 + 2

var keyNames = map[uint16]string{
	DeclarePublisherKey:        "DeclarePublisher",
	PublishKey:                 "Publish",
	PublishConfirmKey:          "PublishConfirm",
	PublishErrorKey:            "PublishError",
	QueryPublisherSequenceKey:  "QueryPublisherSequence",
	DeletePublisherKey:         "DeletePublisher",
	SubscribeKey:               "Subscribe",
	DeliverKey:                 "Deliver",
	CreditKey:                  "Credit",
	StoreOffsetKey:             "StoreOffset",
	QueryOffsetKey:             "QueryOffset",
	UnsubscribeKey:             "Unsubscribe",
	CreateStreamKey:            "CreateStream",
	DeleteStreamKey:            "DeleteStream",
	MetadataKey:                "Metadata",
	MetadataUpdateKey:          "MetadataUpdate",
	PeerPropertiesKey:          "PeerProperties",
	SaslHandshakeKey:           "SaslHandshake",
	SaslAuthenticateKey:        "SaslAuthenticate",
	TuneKey:                    "Tune",
	OpenKey:                    "Open",
	CloseKey:                   "Close",
	HeartbeatKey:               "Heartbeat",
	RouteKey:                   "Route",
	PartitionsKey:              "Partitions",
	ConsumerUpdateKey:          "ConsumerUpdate",
	ExchangeCommandVersionsKey: "ExchangeCommandVersions",
	StreamStatsKey:             "StreamStats",
}

// KeyName returns a printable name for a key, response flag included
func KeyName(key uint16) string {
	name, ok := keyNames[key&^serde.ResponseFlag]
	if !ok {
		return "Unknown"
	}
	if key&serde.ResponseFlag != 0 {
		return name + "Response"
	}
	return name
}

// serverCommandVersions lists, for every frame the server may send unsolicited,
// the versions a client accepts
var serverCommandVersions = map[uint16][]uint16{
	PublishConfirmKey:   {1},
	PublishErrorKey:     {1},
	DeliverKey:          {1, 2},
	CreditResponseKey:   {1},
	MetadataResponseKey: {1},
	MetadataUpdateKey:   {1},
	TuneKey:             {1},
	CloseKey:            {1},
	HeartbeatKey:        {1},
	ConsumerUpdateKey:   {1},
}

// IsServerCommand reports if the server may send key without a pending request
func IsServerCommand(key uint16) bool {
	_, ok := serverCommandVersions[key]
	return ok
}

// IsSupportedServerCommand reports if version is accepted for a server sent key
func IsSupportedServerCommand(key, version uint16) bool {
	for _, v := range serverCommandVersions[key] {
		if v == version {
			return true
		}
	}
	return false
}
