package udrone

import "encoding/json"

// Envelope is the wire message exchanged between the controller and drones.
// It is serialized as compact JSON with no insignificant whitespace.
type Envelope struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Type string          `json:"type"`
	Seq  uint32          `json:"seq"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AssignData is the payload of a !assign request.
type AssignData struct {
	Group string `json:"group"`
	Seq   uint32 `json:"seq"`
}

// ResetData is the optional payload of a !reset request.
type ResetData struct {
	How string `json:"how,omitempty"`
}

// StatusData is the payload of a status reply.
type StatusData struct {
	Code   int    `json:"code"`
	ErrStr string `json:"errstr,omitempty"`
}

func encodeEnvelope(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// decodeEnvelope parses a raw datagram into an Envelope. It returns ok=false
// for anything oversize, not well-formed JSON, or with an empty from or type
// field; callers are expected to silently discard such datagrams. The to and
// seq fields are checked separately by matchesFilter.
func decodeEnvelope(raw []byte) (*Envelope, bool) {
	if len(raw) > MaxDatagramSize {
		return nil, false
	}
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if e.From == "" || e.Type == "" {
		return nil, false
	}
	return &e, true
}

// matchesFilter reports whether a decoded envelope is addressed to us and,
// when a seq/type filter is active, whether it satisfies it.
func matchesFilter(e *Envelope, ownID string, seq *uint32, typ string) bool {
	if e.To != ownID {
		return false
	}
	if seq != nil && e.Seq != *seq {
		return false
	}
	if typ != "" && e.Type != typ {
		return false
	}
	return true
}

func decodeStatusData(e *Envelope) (StatusData, bool) {
	if e.Type != TypeStatus || len(e.Data) == 0 {
		return StatusData{}, false
	}
	var sd StatusData
	if err := json.Unmarshal(e.Data, &sd); err != nil {
		return StatusData{}, false
	}
	return sd, true
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}
