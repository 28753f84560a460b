// Package rpc frames and correlates JSON-RPC 2.0 messages over either an
// LSP-style Content-Length-delimited stream or an MCP-style
// newline-delimited stream (C2 in the component design).
package rpc

import "encoding/json"

// Message is a JSON-RPC 2.0 envelope: a request/notification has Method set,
// a response has Result or Error set, correlated by ID.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is a JSON-RPC 2.0 error object.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return e.Message
}

// IsRequest reports whether the message is a request (has an ID and a method).
func (m *Message) IsRequest() bool { return m.ID != nil && m.Method != "" }

// IsNotification reports whether the message is a notification (no ID).
func (m *Message) IsNotification() bool { return m.ID == nil && m.Method != "" }

// IsResponse reports whether the message is a response (has an ID, no method).
func (m *Message) IsResponse() bool { return m.ID != nil && m.Method == "" }

func newRequest(id int64, method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: &id, Method: method, Params: raw}, nil
}

func newNotification(method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

func newResponse(id int64, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: &id, Result: raw}, nil
}

func newErrorResponse(id int64, code int, message string) *Message {
	return &Message{JSONRPC: "2.0", ID: &id, Error: &ResponseError{Code: code, Message: message}}
}
