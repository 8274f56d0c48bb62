package protocol

import "github.com/CefBoud/monstream/serde"

// Tune is proposed by the server once authenticated, the client answers with its
// negotiated values
type Tune struct {
	FrameMax  uint32
	Heartbeat uint32
}

func (t Tune) Key() uint16     { return TuneKey }
func (t Tune) Version() uint16 { return 1 }
func (t Tune) Encode(e *serde.Encoder) {
	e.PutInt32(t.FrameMax)
	e.PutInt32(t.Heartbeat)
}

// DecodeTune parses a tune command
func DecodeTune(frame []byte) (Tune, error) {
	var t Tune
	err := decodeCommand(frame, func(d *serde.Decoder) {
		t.FrameMax = d.UInt32()
		t.Heartbeat = d.UInt32()
	})
	return t, err
}

// Negotiate picks, for each value, the max when one side has no preference (0)
// and the min otherwise
func Negotiate(client, server Tune) Tune {
	return Tune{
		FrameMax:  negotiateValue(client.FrameMax, server.FrameMax),
		Heartbeat: negotiateValue(client.Heartbeat, server.Heartbeat),
	}
}

func negotiateValue(client, server uint32) uint32 {
	if client == 0 || server == 0 {
		return max(client, server)
	}
	return min(client, server)
}

// Heartbeat keeps an idle connection alive
type Heartbeat struct{}

func (h Heartbeat) Key() uint16           { return HeartbeatKey }
func (h Heartbeat) Version() uint16       { return 1 }
func (h Heartbeat) Encode(*serde.Encoder) {}
