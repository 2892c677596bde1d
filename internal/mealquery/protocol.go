// Package mealquery serves read-only meal lookups over a line-delimited
// JSON-RPC 2.0 socket protocol. Every request and response is a single JSON
// object terminated by '\n'.
package mealquery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const jsonRPCVersion = "2.0"

// ProtocolVersion is reported by initialize.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeUnauthorized   = -32001
	CodeRateLimited    = -32029
)

// Request is one JSON-RPC call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries either Result or Error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. It also serves as a Go error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func rpcError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CallParams are the params of tools/call.
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Token     string          `json:"token"`
}

// ToolArguments are accepted by both tools. UserID is optional and, when
// present, must match the token's user. Date selects a single day and
// cannot be combined with From/To.
type ToolArguments struct {
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Date      string  `json:"date,omitempty"`
	UserID    *UserID `json:"userId,omitempty"`
	UserIDAlt *UserID `json:"user_id,omitempty"`
}

// UserID decodes from a JSON number or a decimal string.
type UserID int64

func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("user id %q is not an integer", data)
	}
	*u = UserID(v)
	return nil
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the result of tools/call.
type ToolResult struct {
	Content []Content `json:"content"`
}

// Tool describes a callable tool in tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ServerInfo identifies the server in initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is returned by initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}
