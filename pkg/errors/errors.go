// Package errors provides structured error types for the rawhttp-core library.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorType represents the category of error that occurred.
type ErrorType string

const (
	ErrorTypeDNS        ErrorType = "dns"
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeTLS        ErrorType = "tls"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeProtocol   ErrorType = "protocol"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeProxy      ErrorType = "proxy"
	ErrorTypeRedirect   ErrorType = "redirect"
	ErrorTypeWebSocket  ErrorType = "websocket"
	ErrorTypeCancelled  ErrorType = "cancelled"
)

// Code names a specific failure mode within a Type (e.g. RedirectLoop,
// MalformedChunk, HandshakeFailed).
type Code string

const (
	CodeInvalidURL          Code = "InvalidUrl"
	CodeUnsupportedScheme   Code = "UnsupportedScheme"
	CodeDNSFailure          Code = "DnsFailure"
	CodeConnectTimeout      Code = "ConnectTimeout"
	CodeConnectRefused      Code = "ConnectRefused"
	CodeTLSHandshake        Code = "TlsHandshake"
	CodeProxyAuthRequired   Code = "ProxyAuthRequired"
	CodeProxyRejected       Code = "ProxyRejected"
	CodeProxyProtocol       Code = "ProxyProtocol"
	CodeWriteFailed         Code = "WriteFailed"
	CodeReadFailed          Code = "ReadFailed"
	CodeUnexpectedEOF       Code = "UnexpectedEof"
	CodeMalformedStatus     Code = "MalformedStatusLine"
	CodeMalformedHeader     Code = "MalformedHeader"
	CodeMalformedChunk      Code = "MalformedChunk"
	CodeHeadersTooLarge     Code = "HeadersTooLarge"
	CodeBodyTooLarge        Code = "BodyTooLarge"
	CodeDecodeFailed        Code = "DecodeFailed"
	CodeRedirectLoop        Code = "RedirectLoop"
	CodeTooManyRedirects    Code = "TooManyRedirects"
	CodeMalformedRedirect   Code = "MalformedRedirect"
	CodeHandshakeFailed     Code = "HandshakeFailed"
	CodeFrameProtocol       Code = "FrameProtocol"
	CodeControlFrameInvalid Code = "ControlFrameInvalid"
	CodeUnmaskedServerFrame Code = "UnmaskedServerFrame"
	CodeTimeout             Code = "Timeout"
	CodeCancelled           Code = "Cancelled"
)

// Error represents a structured error with context information.
type Error struct {
	Type      ErrorType
	Code      Code
	Op        string
	Message   string
	Cause     error
	Host      string
	Port      int
	Addr      string
	Timestamp time.Time
}

// Error implements the error interface.
// Format: [type/code] op addr: message: cause
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s/%s]", e.Type, e.Code))
	} else {
		parts = append(parts, fmt.Sprintf("[%s]", e.Type))
	}

	if e.Op != "" {
		parts = append(parts, e.Op)
	}

	if e.Addr != "" {
		parts = append(parts, e.Addr)
	} else if e.Host != "" {
		if e.Port > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", e.Host, e.Port))
		} else {
			parts = append(parts, e.Host)
		}
	}

	errStr := strings.Join(parts, " ")
	if e.Message != "" {
		errStr += ": " + e.Message
	}
	if e.Cause != nil {
		errStr += ": " + e.Cause.Error()
	}

	return errStr
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target type/code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Type == t.Type
}

func newErr(typ ErrorType, code Code, op, message string, cause error) *Error {
	return &Error{
		Type:      typ,
		Code:      code,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

func NewInvalidURLError(raw string, cause error) *Error {
	return newErr(ErrorTypeValidation, CodeInvalidURL, "parse", fmt.Sprintf("invalid url %q", raw), cause)
}

func NewUnsupportedSchemeError(scheme string) *Error {
	return newErr(ErrorTypeValidation, CodeUnsupportedScheme, "validate", fmt.Sprintf("unsupported scheme %q", scheme), nil)
}

func NewDNSError(host string, cause error) *Error {
	e := newErr(ErrorTypeDNS, CodeDNSFailure, "lookup", fmt.Sprintf("DNS lookup failed for host %s", host), cause)
	e.Host = host
	e.Addr = host
	return e
}

func NewConnectionError(host string, port int, cause error) *Error {
	addr := fmt.Sprintf("%s:%d", host, port)
	code := CodeConnectRefused
	if IsTimeoutError(cause) {
		code = CodeConnectTimeout
	}
	e := newErr(ErrorTypeConnection, code, "dial", fmt.Sprintf("failed to connect to %s", addr), cause)
	e.Host, e.Port, e.Addr = host, port, addr
	return e
}

func NewTLSError(host string, port int, cause error) *Error {
	addr := fmt.Sprintf("%s:%d", host, port)
	e := newErr(ErrorTypeTLS, CodeTLSHandshake, "handshake", fmt.Sprintf("TLS handshake failed for %s", addr), cause)
	e.Host, e.Port, e.Addr = host, port, addr
	return e
}

func NewTimeoutError(operation string, timeout time.Duration) *Error {
	return newErr(ErrorTypeTimeout, CodeTimeout, operation, fmt.Sprintf("operation timed out after %v", timeout), nil)
}

func NewCancelledError(operation string) *Error {
	return newErr(ErrorTypeCancelled, CodeCancelled, operation, "operation was cancelled", context.Canceled)
}

func NewProtocolError(code Code, message string, cause error) *Error {
	return newErr(ErrorTypeProtocol, code, "parse", message, cause)
}

func NewIOError(operation string, cause error) *Error {
	op := operation
	code := CodeReadFailed
	lower := strings.ToLower(operation)
	if strings.Contains(lower, "read") {
		op = "read"
		code = CodeReadFailed
	} else if strings.Contains(lower, "writ") {
		op = "write"
		code = CodeWriteFailed
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return newErr(ErrorTypeIO, code, op, fmt.Sprintf("I/O error during %s", operation), cause)
}

func NewValidationError(message string) *Error {
	return newErr(ErrorTypeValidation, "", "validate", message, nil)
}

// NewProxyError wraps a proxy-dialog failure (auth/rejected/protocol) with the
// proxy address that produced it.
func NewProxyError(code Code, proxyType, proxyAddr, op string, cause error) *Error {
	e := newErr(ErrorTypeProxy, code, op, fmt.Sprintf("%s proxy %s failed", proxyType, op), cause)
	e.Addr = proxyAddr
	return e
}

// ProxyError is the §7 ProxyRejected(detail)/ProxyProtocol(detail) family.
type ProxyError = Error

// NewRedirectError builds a RedirectLoop/TooManyRedirects/MalformedRedirect error.
func NewRedirectError(code Code, message string) *Error {
	return newErr(ErrorTypeRedirect, code, "redirect", message, nil)
}

// NewWebSocketError builds a HandshakeFailed/FrameProtocol/ControlFrameInvalid/
// UnmaskedServerFrame error.
func NewWebSocketError(code Code, message string, cause error) *Error {
	return newErr(ErrorTypeWebSocket, code, "websocket", message, cause)
}

// NewDecodeError wraps a content-encoding decompression failure.
func NewDecodeError(coding string, cause error) *Error {
	return newErr(ErrorTypeProtocol, CodeDecodeFailed, "decode", fmt.Sprintf("failed to decode %s content-encoding", coding), cause)
}

// NewBodyTooLargeError signals that a response body exceeded its configured cap.
func NewBodyTooLargeError(limit int64) *Error {
	return newErr(ErrorTypeProtocol, CodeBodyTooLarge, "read", fmt.Sprintf("body exceeds limit of %d bytes", limit), nil)
}

// NewHeadersTooLargeError signals the header section exceeded its configured cap.
func NewHeadersTooLargeError(limit int) *Error {
	return newErr(ErrorTypeProtocol, CodeHeadersTooLarge, "read", fmt.Sprintf("headers exceed maximum size of %d bytes", limit), nil)
}

// IsTimeoutError checks if an error is a timeout error.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Type == ErrorTypeTimeout || e.Code == CodeTimeout || e.Code == CodeConnectTimeout
	}
	if netErr, ok := err.(net.Error); ok {
		return netErr.Timeout()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// IsTemporaryError checks if an error is temporary.
func IsTemporaryError(err error) bool {
	if netErr, ok := err.(net.Error); ok {
		return netErr.Temporary()
	}
	return false
}

// GetErrorType returns the error type if it's a structured error.
func GetErrorType(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ""
}

// GetErrorCode returns the error code if it's a structured error.
func GetErrorCode(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsContextCanceled checks if an error is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsContextTimeout checks if an error is due to context deadline exceeded.
func IsContextTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
