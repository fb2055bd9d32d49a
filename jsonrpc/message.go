package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const jsonRPCVersion = "2.0"

// CancelRequestMethod is the reserved notification a peer sends to abort an
// in-flight request it previously issued.
const CancelRequestMethod = "$/cancelRequest"

// Kind discriminates the four JSON-RPC message shapes.
type Kind int

const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResponse
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Message is a classified inbound JSON-RPC message. Which fields are set
// depends on Kind.
type Message struct {
	Kind   Kind
	ID     *int64
	Method string
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error
}

// Params is the ordered parameter sequence of a request or notification.
type Params []json.RawMessage

// Len returns the number of parameters.
func (p Params) Len() int {
	return len(p)
}

// Decode unmarshals the i-th parameter into v. A missing parameter or a type
// mismatch is reported as ErrInvalidParams.
func (p Params) Decode(i int, v interface{}) error {
	if i < 0 || i >= len(p) {
		return fmt.Errorf("%w: missing parameter %d", ErrInvalidParams, i)
	}
	if err := json.Unmarshal(p[i], v); err != nil {
		return fmt.Errorf("%w: parameter %d: %v", ErrInvalidParams, i, err)
	}
	return nil
}

// Classify determines the shape of a decoded JSON-RPC message. Key presence
// decides: no id means Notification, then method, result and error in that
// order. Anything else is ErrMalformedMessage.
func Classify(raw json.RawMessage) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedMessage)
	}

	msg := &Message{}
	if m, ok := fields["method"]; ok {
		if err := json.Unmarshal(m, &msg.Method); err != nil || msg.Method == "" {
			return nil, fmt.Errorf("%w: method must be a non-empty string", ErrMalformedMessage)
		}
	}
	msg.Params = fields["params"]

	rawID, hasID := fields["id"]
	if !hasID {
		if msg.Method == "" {
			return nil, fmt.Errorf("%w: notification without method", ErrMalformedMessage)
		}
		msg.Kind = KindNotification
		return msg, nil
	}

	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}
	msg.ID = id

	if msg.Method != "" {
		if id == nil {
			return nil, fmt.Errorf("%w: request with null id", ErrMalformedMessage)
		}
		msg.Kind = KindRequest
		return msg, nil
	}

	if result, ok := fields["result"]; ok {
		msg.Kind = KindResponse
		msg.Result = result
		return msg, nil
	}

	if rawErr, ok := fields["error"]; ok {
		var rpcErr Error
		if err := json.Unmarshal(rawErr, &rpcErr); err != nil {
			return nil, fmt.Errorf("%w: bad error object: %v", ErrMalformedMessage, err)
		}
		msg.Kind = KindError
		msg.Error = &rpcErr
		return msg, nil
	}

	return nil, fmt.Errorf("%w: no method, result or error", ErrMalformedMessage)
}

// parseID accepts an integer id or an explicit null.
func parseID(raw json.RawMessage) (*int64, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("%w: id must be an integer", ErrMalformedMessage)
	}
	id, err := n.Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: id must be an integer", ErrMalformedMessage)
	}
	return &id, nil
}

// parseParams turns the raw params member into a positional sequence.
// Missing or null params are an empty sequence; objects are rejected.
func parseParams(raw json.RawMessage) (Params, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Params{}, nil
	}
	if trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: params must be an array", ErrInvalidParams)
	}
	var p Params
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

// Wire frames. Field order matches what launcher hosts expect on the wire.

type requestFrame struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	ID      int64         `json:"id"`
	Params  []interface{} `json:"params"`
}

type notificationFrame struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type responseFrame struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result"`
	ID      int64       `json:"id"`
}

type errorFrame struct {
	JSONRPC string `json:"jsonrpc"`
	Error   *Error `json:"error"`
	ID      *int64 `json:"id"`
}

type cancelParams struct {
	ID int64 `json:"id"`
}

func positional(params []interface{}) []interface{} {
	if params == nil {
		return []interface{}{}
	}
	return params
}
