package mcp

import (
	"encoding/json"
	"fmt"
)

// MCP frames every message as JSON-RPC 2.0. The shapes below are fixed
// by that protocol; only the three message kinds the client actually
// produces or consumes are modeled.
const jsonrpcVersion = "2.0"

// Request is an outbound call expecting a correlated response.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request. IDs are assigned by the caller; the
// client uses a monotonic counter so responses can be matched.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

// Notification is a fire-and-forget message: no ID, no response.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification builds a notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: jsonrpcVersion, Method: method, Params: params}
}

// Response is an inbound reply. A well-formed server sets exactly one
// of Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Err returns the response's error object as a Go error, or nil for a
// success response.
func (r *Response) Err() error {
	if r.Error != nil {
		return r.Error
	}
	return nil
}

// RPCError is the protocol-level error object carried in a response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
