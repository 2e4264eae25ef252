// Package constants defines magic numbers and default values shared across
// go-rawhttp-core.
package constants

import "time"

// Connection timeouts.
const (
	DefaultConnTimeout = 10 * time.Second
	DefaultReadTimeout = 30 * time.Second
	DefaultDNSTimeout  = 5 * time.Second
)

// HTTP framing limits.
const (
	// DefaultReadBufferSize is the read_buffer_size default when the caller
	// does not set one with Builder.Buffer.
	DefaultReadBufferSize = 4096

	// HeaderSizeMultiplier is the factor applied to ReadBufferSize to derive
	// the header-section cap: a response is refused once its headers exceed
	// read_buffer_size*16.
	HeaderSizeMultiplier = 16

	// MaxChunkSize is the largest single chunk size accepted (must be < 2^31).
	MaxChunkSize = (1 << 31) - 1

	// MaxContentLength bounds Content-Length values accepted without an
	// explicit caller-configured body cap (sanity ceiling, not the
	// caller-facing BodyTooLarge limit).
	MaxContentLength = 1024 * 1024 * 1024 * 1024 // 1TB
)

// Redirect defaults.
const (
	DefaultMaxRedirects = 8
)

// Buffer limits (ambient, pkg/buffer).
const (
	DefaultBodyMemLimit = 4 * 1024 * 1024   // 4MB
	MaxRawBufferSize    = 100 * 1024 * 1024 // 100MB cap for raw buffer accounting
)

// WebSocket defaults.
const (
	WebSocketGUID          = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	MaxControlFramePayload = 125
	WebSocketKeyBytes      = 16
)
