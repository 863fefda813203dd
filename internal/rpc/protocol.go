package rpc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Kind discriminates messages on the wire.
type Kind string

// Request kinds (orchestrator to worker).
const (
	KindLoad     Kind = "load"
	KindGenerate Kind = "generate"
)

// Response kinds (worker to orchestrator).
const (
	KindLoaded Kind = "loaded"
	KindResult Kind = "result"
	KindError  Kind = "error"
)

// GenerateOptions tune a single generation call.
type GenerateOptions struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	DoSample     bool    `json:"do_sample"`
}

// Request is a typed command sent to the worker. The id is opaque to the
// worker beyond being echoed back on the matching response.
type Request struct {
	ID       string           `json:"id"`
	Type     Kind             `json:"type"`
	Message  string           `json:"message,omitempty"`
	Language string           `json:"language,omitempty"`
	Options  *GenerateOptions `json:"options,omitempty"`
}

// Response is the single reply the worker emits for a request id.
type Response struct {
	ID       string `json:"id"`
	Type     Kind   `json:"type"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewID generates a correlation id, unique among currently pending requests
// with overwhelming probability.
func NewID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("rpc: reading random id bytes: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// checkShape validates a decoded response against the protocol. A response
// that fails it is converted into a synthesized error response by the
// receive loop rather than surfacing a raw parse fault.
func (r *Response) checkShape() error {
	switch r.Type {
	case KindLoaded:
		return nil
	case KindResult:
		if r.Response == "" {
			return fmt.Errorf("result response is missing the response field")
		}
		return nil
	case KindError:
		if r.Error == "" {
			return fmt.Errorf("error response is missing the error field")
		}
		return nil
	default:
		return fmt.Errorf("unknown response type %q", r.Type)
	}
}
