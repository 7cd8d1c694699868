package transformer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Message types carried in the "type" field of a mesh JSON envelope
const (
	TypeTelemetry = "telemetry"
	TypePosition  = "position"
	TypeNodeInfo  = "nodeinfo"
)

// Category labels, also used as measurement suffixes
const (
	CategoryEnv      = "env"
	CategoryDevice   = "device"
	CategoryAir      = "air"
	CategoryHost     = "host"
	CategoryPosition = "position"
)

// Message is a single decoded mesh message handed to the classifier
type Message struct {
	From    uint32
	Type    string
	Payload map[string]any
}

// Record is one time-series point ready for the metrics database
type Record struct {
	Measurement string             `json:"measurement"`
	Fields      map[string]float64 `json:"fields"`
	Timestamp   int64              `json:"timestamp"` // unix millis
}

// Result is the outcome of classifying one message.
// Valid=false means the message must not be persisted; Records is empty then.
type Result struct {
	Records  []Record
	Valid    bool
	Category string
}

func invalid() Result {
	return Result{Records: []Record{}}
}

// Envelope is the JSON object published by meshtasticd on its json topics
type Envelope struct {
	From    uint32
	Type    string
	Payload map[string]any
	// Extra keeps every other top-level key (id, sender, timestamp, channel...)
	Extra map[string]json.RawMessage
}

// Message returns the part of the envelope the classifier looks at
func (e Envelope) Message() Message {
	return Message{From: e.From, Type: e.Type, Payload: e.Payload}
}

// Output is the envelope after classification: payload replaced by records
type Output struct {
	From     uint32   `json:"from"`
	Type     string   `json:"type"`
	Payload  []Record `json:"payload"`
	Valid    bool     `json:"valid"`
	DataType string   `json:"dataType,omitempty"`
}

// DecodeEnvelope parses a mesh JSON envelope. Numbers inside payload are kept
// as json.Number. A missing or non-object payload decodes to an empty map.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	env := Envelope{Payload: map[string]any{}, Extra: map[string]json.RawMessage{}}
	for key, value := range raw {
		switch key {
		case "from":
			from, err := decodeNodeNumber(value)
			if err != nil {
				return Envelope{}, fmt.Errorf("decode envelope field from: %w", err)
			}
			env.From = from
		case "type":
			if err := json.Unmarshal(value, &env.Type); err != nil {
				return Envelope{}, fmt.Errorf("decode envelope field type: %w", err)
			}
		case "payload":
			dec := json.NewDecoder(bytes.NewReader(value))
			dec.UseNumber()
			var payload any
			if err := dec.Decode(&payload); err != nil {
				return Envelope{}, fmt.Errorf("decode envelope field payload: %w", err)
			}
			if m, ok := payload.(map[string]any); ok {
				env.Payload = m
			}
		default:
			env.Extra[key] = value
		}
	}

	if _, ok := raw["from"]; !ok {
		return Envelope{}, fmt.Errorf("decode envelope: missing from")
	}
	return env, nil
}

func decodeNodeNumber(value json.RawMessage) (uint32, error) {
	var n json.Number
	if err := json.Unmarshal(value, &n); err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(n.String(), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// number reads key from payload as a float64. Missing keys, JSON null and
// non-numeric values all count as absent.
func number(p map[string]any, key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
