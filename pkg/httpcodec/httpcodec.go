// Package httpcodec implements the HTTP/1.1 wire codec: serializing a
// request exactly as given (no hidden header injection beyond Host) and
// parsing a response byte-for-byte, preserving the raw bytes alongside the
// decoded view. Built on a plain io.Reader/io.Writer so both the sync and
// the goroutine-backed async send path can share one codec.
package httpcodec

import (
	"bufio"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/whileendless/go-rawhttp-core/pkg/buffer"
	"github.com/whileendless/go-rawhttp-core/pkg/constants"
	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/headers"
	"github.com/whileendless/go-rawhttp-core/pkg/timing"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

// Request is the message this codec writes to the wire.
type Request struct {
	Method  string
	URL     *urlmodel.URL
	Headers *headers.Set

	// Body is the already-framed payload: the caller has already set
	// Content-Length or Transfer-Encoding: chunked on Headers to match it.
	// Body may be nil for methods with no payload.
	Body io.Reader

	// UseAbsoluteForm renders "METHOD http://host/path HTTP/1.1" instead of
	// "METHOD /path HTTP/1.1" — set when transport.Metadata.UseAbsoluteForm
	// is true (plain http/ws proxied through an HTTP proxy).
	UseAbsoluteForm bool
}

// WriteRequest serializes req to w. The Host header is added only if the
// caller did not already set one — this library never silently overrides a
// caller-provided Host.
func WriteRequest(w io.Writer, req *Request) error {
	target := req.URL.RequestTarget()
	if req.UseAbsoluteForm {
		target = req.URL.AbsoluteForm()
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(req.Method + " " + target + " HTTP/1.1\r\n"); err != nil {
		return errors.NewIOError("writing request line", err)
	}

	if !req.Headers.Has("Host") {
		if _, err := bw.WriteString("Host: " + req.URL.HostPort() + "\r\n"); err != nil {
			return errors.NewIOError("writing host header", err)
		}
	}

	if _, err := req.Headers.WriteTo(bw); err != nil {
		return errors.NewIOError("writing headers", err)
	}

	if _, err := bw.WriteString("\r\n"); err != nil {
		return errors.NewIOError("writing header terminator", err)
	}

	if err := bw.Flush(); err != nil {
		return errors.NewIOError("flushing request", err)
	}

	if req.Body != nil {
		if _, err := io.Copy(w, req.Body); err != nil {
			return errors.NewIOError("writing request body", err)
		}
	}

	return nil
}

// Limits bounds what ReadResponse will accept before refusing.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64 // 0 = unbounded
	BodyMemLimit   int64 // spillable buffer threshold (pkg/buffer)
}

// Response is the decoded view of a parsed HTTP/1.1 response, alongside the
// exact bytes read.
type Response struct {
	HTTPVersion string
	StatusCode  int
	StatusLine  string
	Headers     *headers.Set
	Body        *buffer.Buffer
	Raw         *buffer.Buffer
	BodyBytes   int64
	RawBytes    int64
	// DecodedPartial is true when the body was truncated by a protocol
	// violation (short chunk, early close) rather than read in full.
	DecodedPartial bool
}

// ReadResponse parses one HTTP/1.1 response from r for a request made with
// method, honoring limits and recording TTFB on timer.
func ReadResponse(r *bufio.Reader, method string, limits Limits, timer *timing.Timer) (*Response, error) {
	rawCap := limits.BodyMemLimit + 1024*1024
	if rawCap <= 0 || rawCap > 100*1024*1024 {
		rawCap = 100 * 1024 * 1024
	}

	resp := &Response{
		Headers: headers.New(),
		Body:    buffer.New(limits.BodyMemLimit),
		Raw:     buffer.New(rawCap),
	}

	timer.StartTTFB()
	statusLine, err := readLine(r)
	timer.EndTTFB()
	if err != nil {
		return nil, errors.NewProtocolError(errors.CodeMalformedStatus, "reading status line", err)
	}
	resp.StatusLine = statusLine
	resp.Raw.Write([]byte(statusLine + "\r\n"))

	if err := parseStatusLine(statusLine, resp); err != nil {
		return nil, err
	}

	if err := readHeaders(r, resp, limits.MaxHeaderBytes); err != nil {
		return nil, err
	}

	if err := readBody(r, resp, method, limits.MaxBodyBytes); err != nil {
		return resp, err
	}

	resp.BodyBytes = resp.Body.Size()
	resp.RawBytes = resp.Raw.Size()
	return resp, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(line, "\r\n") {
		return line[:len(line)-2], nil
	}
	return strings.TrimRight(line, "\n"), nil
}

func parseStatusLine(statusLine string, resp *Response) error {
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		return errors.NewProtocolError(errors.CodeMalformedStatus, "invalid status line format", nil)
	}
	resp.HTTPVersion = parts[0]
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return errors.NewProtocolError(errors.CodeMalformedStatus, "invalid status code", err)
	}
	resp.StatusCode = code
	return nil
}

func readHeaders(r *bufio.Reader, resp *Response, maxHeaderBytes int) error {
	total := 0
	var lastKey string

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return errors.NewProtocolError(errors.CodeMalformedHeader, "reading headers", err)
		}

		total += len(line)
		if maxHeaderBytes > 0 && total > maxHeaderBytes {
			return errors.NewHeadersTooLargeError(maxHeaderBytes)
		}
		resp.Raw.Write([]byte(line))

		if line == "\r\n" {
			break
		}

		trimmed := strings.TrimRight(line, "\r\n")

		// obs-fold continuation (RFC 7230 §3.2.4).
		if strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t") {
			if lastKey == "" {
				continue
			}
			appendFold(resp.Headers, lastKey, strings.TrimSpace(trimmed))
			continue
		}

		idx := strings.IndexByte(trimmed, ':')
		if idx < 0 {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(trimmed[:idx]))
		value := strings.TrimSpace(trimmed[idx+1:])
		resp.Headers.Add(key, value)
		lastKey = key
	}

	return nil
}

// appendFold merges an obs-fold continuation line into the last value
// recorded for key (headers.Set has no in-place mutator, so this rebuilds).
func appendFold(h *headers.Set, key, cont string) {
	vals := h.Values(key)
	if len(vals) == 0 {
		return
	}
	vals[len(vals)-1] = vals[len(vals)-1] + " " + cont
	h.Del(key)
	for _, v := range vals {
		h.Add(key, v)
	}
}

func headerValue(h *headers.Set, name string) string {
	v, _ := h.Get(name)
	return v
}

func readBody(r *bufio.Reader, resp *Response, method string, maxBodyBytes int64) error {
	statusCode := resp.StatusCode
	transferEncoding := headerValue(resp.Headers, "Transfer-Encoding")
	contentLength := headerValue(resp.Headers, "Content-Length")
	connectionHeader := headerValue(resp.Headers, "Connection")

	// RFC 9110 §6.4.1-excluded responses: tolerate RFC-violating servers that
	// send a body anyway by peeking buffered data before skipping.
	if method == "HEAD" ||
		(statusCode >= 100 && statusCode < 200) ||
		statusCode == 204 ||
		statusCode == 304 {
		if r.Buffered() == 0 {
			return nil
		}
	}

	// RFC 7230 §3.3.3: Transfer-Encoding wins the tie-break over
	// Content-Length when a (non-compliant) response sends both.
	switch {
	case strings.Contains(strings.ToLower(transferEncoding), "chunked"):
		return readChunkedBody(r, resp, maxBodyBytes)
	case contentLength != "":
		length, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
		if err != nil || length < 0 || length > constants.MaxContentLength {
			return errors.NewProtocolError(errors.CodeMalformedHeader, "invalid content-length", err)
		}
		if maxBodyBytes > 0 && length > maxBodyBytes {
			return errors.NewBodyTooLargeError(maxBodyBytes)
		}
		return readFixedBody(r, resp, length)
	default:
		return readUntilClose(r, resp, connectionHeader, maxBodyBytes)
	}
}

func readChunkedBody(r *bufio.Reader, resp *Response, maxBodyBytes int64) error {
	tp := textproto.NewReader(r)
	var total int64

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return errors.NewProtocolError(errors.CodeMalformedChunk, "reading chunk size", err)
		}
		resp.Raw.Write([]byte(line + "\r\n"))

		sizeField := strings.SplitN(line, ";", 2)[0]
		size, err := strconv.ParseInt(strings.TrimSpace(sizeField), 16, 64)
		if err != nil {
			return errors.NewProtocolError(errors.CodeMalformedChunk, "invalid chunk size", err)
		}
		if size < 0 || size > constants.MaxChunkSize {
			return errors.NewProtocolError(errors.CodeMalformedChunk, "chunk size out of range", nil)
		}
		if size == 0 {
			break
		}

		total += size
		if maxBodyBytes > 0 && total > maxBodyBytes {
			return errors.NewBodyTooLargeError(maxBodyBytes)
		}

		if _, err := io.CopyN(io.MultiWriter(resp.Body, resp.Raw), tp.R, size); err != nil {
			resp.DecodedPartial = true
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return errors.NewProtocolError(errors.CodeUnexpectedEOF,
					"connection closed before the whole chunk arrived", err)
			}
			return errors.NewIOError("reading chunk body", err)
		}

		crlf := make([]byte, 2)
		if _, err := io.ReadFull(tp.R, crlf); err != nil {
			return errors.NewIOError("reading chunk CRLF", err)
		}
		resp.Raw.Write(crlf)
	}

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return errors.NewProtocolError(errors.CodeMalformedChunk, "reading chunk trailer", err)
		}
		resp.Raw.Write([]byte(line + "\r\n"))
		if line == "" {
			break
		}
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:idx]))
			value := strings.TrimSpace(line[idx+1:])
			resp.Headers.Add(key, value)
		}
	}

	return nil
}

func readFixedBody(r *bufio.Reader, resp *Response, length int64) error {
	if length <= 0 {
		return nil
	}

	_, err := io.CopyN(io.MultiWriter(resp.Body, resp.Raw), r, length)
	if err != nil {
		resp.DecodedPartial = true
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.NewProtocolError(errors.CodeUnexpectedEOF,
				"connection closed before all Content-Length bytes arrived", err)
		}
		return errors.NewIOError("reading fixed body", err)
	}

	// Don't consume buffered bytes past the announced length: they belong
	// to the next pipelined response or must be left for the caller.
	return nil
}

func readUntilClose(r *bufio.Reader, resp *Response, connectionHeader string, maxBodyBytes int64) error {
	var dst io.Writer = io.MultiWriter(resp.Body, resp.Raw)
	if maxBodyBytes > 0 {
		dst = &limitedWriter{w: dst, remaining: maxBodyBytes}
	}
	_, err := io.Copy(dst, r)
	if err != nil {
		if err == errBodyTooLarge {
			return errors.NewBodyTooLargeError(maxBodyBytes)
		}
		if err != io.EOF {
			return errors.NewIOError("reading until close", err)
		}
	}
	return nil
}

var errBodyTooLarge = io.ErrShortWrite

type limitedWriter struct {
	w         io.Writer
	remaining int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		return 0, errBodyTooLarge
	}
	n, err := l.w.Write(p)
	l.remaining -= int64(n)
	return n, err
}
