package realtime

import (
	"encoding/json"
	"fmt"
)

// FrameType names a signaling frame on the rendezvous socket.
type FrameType string

const (
	// FrameOpen is sent by the hub once the socket is registered; ID is the transport address.
	FrameOpen FrameType = "open"
	// FrameOffer and FrameAnswer carry a complete SDP between two addresses.
	FrameOffer  FrameType = "offer"
	FrameAnswer FrameType = "answer"
	// FrameLeave tells the destination the source abandoned the negotiation.
	FrameLeave FrameType = "leave"
	// FrameExpire reports that Dst of a relayed frame is not registered. Src is that address.
	FrameExpire FrameType = "expire"
	// FrameHeartbeat keeps the socket's read deadline fresh.
	FrameHeartbeat FrameType = "heartbeat"
	FrameError     FrameType = "error"
)

// Error codes carried by FrameError.
const (
	CodeUnavailableID = "unavailable-id"
	CodeInvalidID     = "invalid-id"
	CodeBadRequest    = "bad_request"
	CodeServerError   = "server-error"
)

// Frame is the single JSON envelope exchanged with the hub.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SDPPayload is the payload of offer and answer frames.
type SDPPayload struct {
	SDP string `json:"sdp"`
}

func ErrorFrame(code, msg string) Frame {
	return Frame{Type: FrameError, Code: code, Error: msg}
}

// SDPFrame builds an offer or answer frame addressed to dst.
func SDPFrame(t FrameType, dst, sdp string) (Frame, error) {
	body, err := json.Marshal(SDPPayload{SDP: sdp})
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Dst: dst, Payload: body}, nil
}

// SDP extracts the session description of an offer or answer frame.
func (f Frame) SDP() (string, error) {
	var p SDPPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return "", fmt.Errorf("realtime: %s payload: %w", f.Type, err)
	}
	if p.SDP == "" {
		return "", fmt.Errorf("realtime: %s payload has no sdp", f.Type)
	}
	return p.SDP, nil
}

func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("realtime: frame without type")
	}
	return f, nil
}
