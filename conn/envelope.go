package conn

import (
	"encoding/json"

	ckerrors "github.com/vinayprograms/connkit/errors"
)

// Envelope kinds. Heartbeats and acks are control frames, disjoint
// from application data.
const (
	KindData      = "data"
	KindHeartbeat = "heartbeat"
	KindAck       = "ack"
	KindClose     = "close"
)

// Envelope is the wire frame exchanged by the WebSocket and NATS
// connections. Each envelope is one discrete framed unit on a
// serialized channel, so control and data frames interleave safely.
type Envelope struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id,omitempty"`
	WantAck bool            `json:"want_ack,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EncodeEnvelope serializes an outbound message. Heartbeat markers
// become a bare heartbeat frame; everything else is marshaled into a
// data frame.
func EncodeEnvelope(msg any, id string, wantAck bool) ([]byte, error) {
	if IsHeartbeat(msg) {
		return json.Marshal(Envelope{Kind: KindHeartbeat})
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, ckerrors.WrapWithCode(err, ckerrors.ErrCodeInvalidInput, "encode payload")
	}
	return json.Marshal(Envelope{Kind: KindData, ID: id, WantAck: wantAck, Data: data})
}

// EncodeAck serializes an acknowledgment frame for the given envelope ID.
func EncodeAck(id string) ([]byte, error) {
	return json.Marshal(Envelope{Kind: KindAck, ID: id})
}

// EncodeClose serializes a close frame. A nil cause marks a graceful
// close; otherwise the cause travels with the frame so the peer can
// surface it on its own lifecycle.
func EncodeClose(cause error) ([]byte, error) {
	env := Envelope{Kind: KindClose}
	if cause != nil {
		connErr, ok := cause.(*ckerrors.Error)
		if !ok {
			connErr = ckerrors.Wrap(cause, cause.Error())
		}
		data, err := json.Marshal(connErr)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeEnvelope parses a wire frame.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ckerrors.WrapWithCode(err, ckerrors.ErrCodeCorruption, "decode frame")
	}
	switch env.Kind {
	case KindData, KindHeartbeat, KindAck, KindClose:
		return &env, nil
	default:
		return nil, ckerrors.Newf(ckerrors.ErrCodeCorruption, "unknown frame kind %q", env.Kind)
	}
}

// Payload converts an inbound envelope into the value published on
// the incoming stream: the heartbeat marker for heartbeat frames, raw
// JSON for data frames.
func (e *Envelope) Payload() any {
	if e.Kind == KindHeartbeat {
		return Heartbeat{}
	}
	return e.Data
}

// CloseCause decodes the error carried by a close frame. Returns nil
// for a graceful close.
func (e *Envelope) CloseCause() error {
	if e.Kind != KindClose || len(e.Data) == 0 {
		return nil
	}
	var connErr ckerrors.Error
	if err := json.Unmarshal(e.Data, &connErr); err != nil {
		return ckerrors.FromCode(ckerrors.ErrCodePeerGone)
	}
	return &connErr
}
