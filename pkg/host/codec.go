// Package host provides message-channel communication between the permit
// library and the host environment's bridge. It lets Go code invoke
// host-side capability services and receive events from the host
// (permission state changes, stream teardown, etc.).
package host

import (
	"encoding/json"
	"errors"
)

// MessageCodec encodes and decodes messages for bridge channel communication.
type MessageCodec interface {
	// Encode converts a Go value to bytes for transmission to the host side.
	Encode(value any) ([]byte, error)

	// Decode converts bytes received from the host side to a Go value.
	Decode(data []byte) (any, error)
}

// JsonCodec implements MessageCodec using JSON encoding.
// JSON prioritizes interoperability and minimal host-side dependencies.
type JsonCodec struct{}

// Encode serializes the value to JSON bytes.
func (c JsonCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode deserializes JSON bytes to a Go value.
func (c JsonCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DecodeInto deserializes JSON bytes into a specific type.
func (c JsonCodec) DecodeInto(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// DefaultCodec is the codec used by bridge channels.
var DefaultCodec MessageCodec = JsonCodec{}

// Standard errors for bridge channel operations.
var (
	// ErrChannelNotFound indicates the requested bridge channel does not exist.
	ErrChannelNotFound = errors.New("bridge channel not found")

	// ErrMethodNotFound indicates the method is not implemented on the host side.
	ErrMethodNotFound = errors.New("method not implemented")

	// ErrInvalidArguments indicates the arguments passed to the method were invalid.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrBridgeUnavailable indicates no host bridge is installed. Permission
	// queries made in this state are reported as unsupported.
	ErrBridgeUnavailable = errors.New("host bridge unavailable")

	// ErrProtocol indicates the installed bridge speaks an incompatible
	// protocol version.
	ErrProtocol = errors.New("incompatible bridge protocol")

	// ErrTimeout indicates the operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates the operation was canceled via context cancellation.
	ErrCanceled = errors.New("operation was canceled")

	// ErrClosed is returned when operating on a closed channel or stream.
	ErrClosed = errors.New("host: channel closed")
)

// ChannelError represents an error returned from the host side.
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewChannelError creates a new ChannelError with the given code and message.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}

// NewChannelErrorWithDetails creates a new ChannelError with additional details.
func NewChannelErrorWithDetails(code, message string, details any) *ChannelError {
	return &ChannelError{Code: code, Message: message, Details: details}
}
