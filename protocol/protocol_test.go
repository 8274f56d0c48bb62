package protocol

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/CefBoud/monstream/serde"
	"github.com/CefBoud/monstream/types"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex fixture: %v", err)
	}
	return b
}

const (
	peerPropertiesFixture = "000000f58011000100000001000100000006000c636c75737465725f6e616d65000b7261626269742d686f6c650009636f707972696768740037436f707972696768742028632920323030372d3230323320564d776172652c20496e632e206f722069747320616666696c69617465732e000b696e666f726d6174696f6e00394c6963656e73656420756e64657220746865204d504c20322e302e20576562736974653a2068747470733a2f2f7261626269746d712e636f6d0008706c6174666f726d000f45726c616e672f4f54502032352e33000770726f6475637400085261626269744d51000776657273696f6e0007332e31312e3130"
	saslHandshakeFixture  = "0000001f80120001000000020001000000020008414d51504c41494e0005504c41494e"
	saslAuthFixture       = "0000000a80130001000000030001"
	tuneFixture           = "0000000c00140001001000000000003c"
	openFixture           = "0000003d8015000100000004000100000002000f616476657274697365645f706f7274000435353532000f616476657274697365645f686f73740005686f737431"
)

func TestHandshakeFixtures(t *testing.T) {
	frame := mustHex(t, peerPropertiesFixture)
	rh, err := ParseResponseHeader(frame)
	if err != nil {
		t.Fatalf("ParseResponseHeader failed: %v", err)
	}
	if !rh.IsResponse() || rh.Key&^serde.ResponseFlag != PeerPropertiesKey || rh.CorrelationID != 1 || rh.Code != CodeOK {
		t.Errorf("Unexpected peer properties header %+v", rh)
	}
	pp, err := DecodePeerPropertiesResponse(frame)
	if err != nil {
		t.Fatalf("DecodePeerPropertiesResponse failed: %v", err)
	}
	if pp.Properties["product"] != "RabbitMQ" || pp.Properties["version"] != "3.11.10" || len(pp.Properties) != 6 {
		t.Errorf("Unexpected server properties %v", pp.Properties)
	}

	sasl, err := DecodeSaslHandshakeResponse(mustHex(t, saslHandshakeFixture))
	if err != nil {
		t.Fatalf("DecodeSaslHandshakeResponse failed: %v", err)
	}
	if !sasl.Supports(PlainMechanism) || len(sasl.Mechanisms) != 2 {
		t.Errorf("Expected AMQPLAIN and PLAIN, got %v", sasl.Mechanisms)
	}

	rh, err = ParseResponseHeader(mustHex(t, saslAuthFixture))
	if err != nil || rh.CorrelationID != 3 || rh.Code != CodeOK {
		t.Errorf("Unexpected authenticate header %+v (%v)", rh, err)
	}

	tune, err := DecodeTune(mustHex(t, tuneFixture))
	if err != nil {
		t.Fatalf("DecodeTune failed: %v", err)
	}
	if tune.FrameMax != 0x100000 || tune.Heartbeat != 60 {
		t.Errorf("Unexpected tune %+v", tune)
	}

	open, err := DecodeOpenResponse(mustHex(t, openFixture))
	if err != nil {
		t.Fatalf("DecodeOpenResponse failed: %v", err)
	}
	if open.Properties["advertised_host"] != "host1" || open.Properties["advertised_port"] != "5552" {
		t.Errorf("Unexpected open properties %v", open.Properties)
	}
}

func TestEncodeRequestLayout(t *testing.T) {
	frame := EncodeRequest(7, DeclarePublisherRequest{PublisherID: 2, Reference: "ref", Stream: "s"})
	expected := mustHex(t, "00000011"+"0001"+"0001"+"00000007"+"02"+"0003"+"726566"+"0001"+"73")
	if hex.EncodeToString(frame) != hex.EncodeToString(expected) {
		t.Errorf("Expected %x, got %x", expected, frame)
	}
	r, err := DecodeDeclarePublisherRequest(frame)
	if err != nil || r.PublisherID != 2 || r.Reference != "ref" || r.Stream != "s" {
		t.Errorf("Unexpected decoded request %+v (%v)", r, err)
	}

	auth := NewPlainAuthenticate("guest", "secret")
	if string(auth.Data) != "\x00guest\x00secret" {
		t.Errorf("Unexpected PLAIN payload %q", auth.Data)
	}
	decoded, err := DecodeSaslAuthenticateRequest(EncodeRequest(3, auth))
	if err != nil {
		t.Fatalf("DecodeSaslAuthenticateRequest failed: %v", err)
	}
	user, pass, ok := decoded.Credentials()
	if !ok || user != "guest" || pass != "secret" || decoded.Mechanism != PlainMechanism {
		t.Errorf("Unexpected credentials %v %v %v", user, pass, ok)
	}
}

func TestServerCommandVersions(t *testing.T) {
	tests := []struct {
		key       uint16
		version   uint16
		supported bool
	}{
		{DeliverKey, 1, true},
		{DeliverKey, 2, true},
		{DeliverKey, 3, false},
		{PublishConfirmKey, 2, false},
		{CreditResponseKey, 1, true},
		{MetadataResponseKey, 1, true},
		{SubscribeKey, 1, false},
	}
	for _, test := range tests {
		if got := IsSupportedServerCommand(test.key, test.version); got != test.supported {
			t.Errorf("IsSupportedServerCommand(%s, %d) = %v, expected %v", KeyName(test.key), test.version, got, test.supported)
		}
	}
	if KeyName(MetadataResponseKey) != "MetadataResponse" {
		t.Errorf("Unexpected key name %v", KeyName(MetadataResponseKey))
	}
}

func TestCommandVersionsTable(t *testing.T) {
	if len(ClientCommandVersions) != 28 {
		t.Fatalf("Expected 28 commands, got %d", len(ClientCommandVersions))
	}
	for _, cv := range ClientCommandVersions {
		expectedMax := uint16(1)
		if cv.Key == DeliverKey {
			expectedMax = 2
		}
		if cv.MinVersion != 1 || cv.MaxVersion != expectedMax {
			t.Errorf("Unexpected range for %s: %+v", KeyName(cv.Key), cv)
		}
	}
	frame := EncodeResponse(9, CodeOK, CommandVersionsExchange{Commands: ClientCommandVersions[:2]})
	c, err := DecodeCommandVersionsResponse(frame)
	if err != nil || len(c.Commands) != 2 || c.Commands[1].Key != PublishKey {
		t.Errorf("Unexpected command versions %+v (%v)", c, err)
	}
}

func TestMetadataResolve(t *testing.T) {
	resp := MetadataResponse{
		Brokers: []Broker{{Reference: 0, Host: "host1", Port: 5552}, {Reference: 1, Host: "host2", Port: 5552}, {Reference: 2, Host: "host3", Port: 5552}},
		Streams: []StreamMetadataEntry{
			{Stream: "s1", Code: CodeOK, Leader: 0, Replicas: []uint16{1, 2}},
			{Stream: "missing", Code: CodeStreamDoesNotExist, Leader: 0xFFFF},
			{Stream: "orphan", Code: CodeOK, Leader: 0xFFFF},
		},
	}
	frame := EncodeMetadataResponse(5, resp)
	rh, err := ParseResponseHeader(frame)
	if err != nil || rh.CorrelationID != 5 || rh.Code != CodeOK {
		t.Fatalf("Unexpected metadata header %+v (%v)", rh, err)
	}
	decoded, err := DecodeMetadataResponse(frame)
	if err != nil {
		t.Fatalf("DecodeMetadataResponse failed: %v", err)
	}
	metadata := decoded.Resolve()
	if _, ok := metadata["missing"]; ok {
		t.Errorf("Expected a missing stream to have no entry")
	}
	s1 := metadata["s1"]
	if s1.Leader == nil || s1.Leader.Host != "host1" || len(s1.Replicas) != 2 || s1.Replicas[1].Host != "host3" {
		t.Errorf("Unexpected s1 metadata %+v", s1)
	}
	if orphan, ok := metadata["orphan"]; !ok || orphan.Leader != nil {
		t.Errorf("Expected orphan stream with a nil leader, got %+v", orphan)
	}
}

func TestConsumerUpdateResponseEncoding(t *testing.T) {
	frame := EncodeResponse(42, CodeOK, ConsumerUpdateResponse{Offset: types.AbsoluteOffset(1000)})
	expected := "00000014" + "801a" + "0001" + "0000002a" + "0001" + "0004" + "00000000000003e8"
	if hex.EncodeToString(frame) != expected {
		t.Errorf("Expected %v, got %x", expected, frame)
	}
	r, err := DecodeConsumerUpdateResponse(frame)
	if v, ok := r.Offset.Absolute(); err != nil || !ok || v != 1000 {
		t.Errorf("Unexpected decoded offset %v (%v)", r.Offset, err)
	}

	frame = EncodeResponse(1, CodeOK, ConsumerUpdateResponse{Offset: types.NextOffset()})
	if r, _ := DecodeConsumerUpdateResponse(frame); r.Offset.Type() != types.OffsetTypeNext {
		t.Errorf("Expected next offset, got %v", r.Offset)
	}
}

func TestSubscribeRoundTrip(t *testing.T) {
	req := SubscribeRequest{SubscriptionID: 3, Stream: "s", Offset: types.TimestampOffset(-5), Credit: 10, Properties: map[string]string{"name": "c"}}
	decoded, err := DecodeSubscribeRequest(EncodeRequest(1, req))
	if err != nil {
		t.Fatalf("DecodeSubscribeRequest failed: %v", err)
	}
	if ts, ok := decoded.Offset.Timestamp(); !ok || ts != -5 || decoded.Credit != 10 || decoded.Properties["name"] != "c" {
		t.Errorf("Unexpected subscribe %+v", decoded)
	}
}

func TestStreamErrorText(t *testing.T) {
	err := error(&StreamError{Key: CreateStreamKey, Code: CodeStreamAlreadyExists})
	if err.Error() != "CreateStream failed: stream already exists (code 0x05)" {
		t.Errorf("Unexpected error text %q", err.Error())
	}
	if !HasCode(err, CodeStreamAlreadyExists) || HasCode(errors.New("x"), CodeOK) {
		t.Errorf("HasCode mismatch")
	}
}

func TestTruncatedResponse(t *testing.T) {
	frame := mustHex(t, saslHandshakeFixture)
	// claim two more mechanisms than the frame holds
	frame[17] = 4
	_, err := DecodeSaslHandshakeResponse(frame)
	if !errors.Is(err, ErrMalformedFrame) || !errors.Is(err, serde.ErrShortBuffer) {
		t.Errorf("Expected a malformed frame error, got %v", err)
	}
}

func TestNegotiate(t *testing.T) {
	got := Negotiate(Tune{FrameMax: 8192, Heartbeat: 10}, Tune{FrameMax: 0, Heartbeat: 20})
	if got.FrameMax != 8192 || got.Heartbeat != 10 {
		t.Errorf("Expected frameMax 8192 heartbeat 10, got %+v", got)
	}
	got = Negotiate(Tune{}, Tune{FrameMax: 1 << 20, Heartbeat: 60})
	if got.FrameMax != 1<<20 || got.Heartbeat != 60 {
		t.Errorf("Expected the server values, got %+v", got)
	}
}
