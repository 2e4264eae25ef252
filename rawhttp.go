// Package rawhttp is the top-level convenience surface over the HTTP/1.1 and
// WebSocket request engine: a Builder that composes the URL model, header
// set, connection substrate, codec, body decoder, and redirect controller
// into a single send operation. Re-exports the package types callers need
// most so `import "github.com/whileendless/go-rawhttp-core"` alone covers
// the common path; the pkg/* subpackages remain usable directly for finer
// control.
package rawhttp

import (
	"github.com/whileendless/go-rawhttp-core/pkg/engine"
	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/headers"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
	"github.com/whileendless/go-rawhttp-core/pkg/wsock"
)

// Version is the current version of this library.
const Version = "1.0.0"

// Re-export key types so callers rarely need to import pkg/* directly.
type (
	// Builder accumulates request configuration.
	Builder = engine.Builder

	// Handle is a synchronous engine handle returned by Builder.BuildSync.
	Handle = engine.Handle

	// AsyncHandle is a cooperative-async engine handle returned by
	// Builder.BuildAsync.
	AsyncHandle = engine.AsyncHandle

	// Response is a parsed HTTP response.
	Response = engine.Response

	// HeaderSet is the case-insensitive ordered header collection.
	HeaderSet = headers.Set

	// URL is the normalized URL view.
	URL = urlmodel.URL

	// WSConn is an established WebSocket session.
	WSConn = wsock.Conn

	// WSMessage is a tagged inbound WebSocket message.
	WSMessage = wsock.Message

	// Error is a structured library error.
	Error = errors.Error
)

// Error type re-exports for convenience.
const (
	ErrorTypeDNS        = errors.ErrorTypeDNS
	ErrorTypeConnection = errors.ErrorTypeConnection
	ErrorTypeTLS        = errors.ErrorTypeTLS
	ErrorTypeTimeout    = errors.ErrorTypeTimeout
	ErrorTypeProtocol   = errors.ErrorTypeProtocol
	ErrorTypeIO         = errors.ErrorTypeIO
	ErrorTypeValidation = errors.ErrorTypeValidation
	ErrorTypeProxy      = errors.ErrorTypeProxy
	ErrorTypeRedirect   = errors.ErrorTypeRedirect
	ErrorTypeWebSocket  = errors.ErrorTypeWebSocket
)

// WebSocket message type re-exports.
const (
	WSText   = wsock.Text
	WSBinary = wsock.Binary
	WSClose  = wsock.Close
	WSPing   = wsock.Ping
	WSPong   = wsock.Pong
)

// New returns an empty request Builder.
func New() *Builder {
	return engine.New()
}

// NewHeaders returns an empty header set.
func NewHeaders() *HeaderSet {
	return headers.New()
}

// ParseURL normalizes a raw URL string into the library's URL model.
func ParseURL(raw string) (*URL, error) {
	return urlmodel.Parse(raw)
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	return errors.IsTimeoutError(err)
}

// IsTemporaryError checks if an error is temporary.
func IsTemporaryError(err error) bool {
	return errors.IsTemporaryError(err)
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) string {
	return string(errors.GetErrorType(err))
}

// GetErrorCode returns the error code if it's a structured error.
func GetErrorCode(err error) string {
	return string(errors.GetErrorCode(err))
}
