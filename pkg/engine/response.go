package engine

import (
	"io"
	"strconv"
	"strings"

	"github.com/whileendless/go-rawhttp-core/pkg/bodycodec"
	"github.com/whileendless/go-rawhttp-core/pkg/buffer"
	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/headers"
	"github.com/whileendless/go-rawhttp-core/pkg/timing"
	"github.com/whileendless/go-rawhttp-core/pkg/transport"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

// Response is the decoded view of a completed send, plus connection and
// timing diagnostics (connected IP, TLS parameters, proxy metadata).
type Response struct {
	statusCode   int
	reasonPhrase string
	headers      *headers.Set
	bodyRaw      *buffer.Buffer
	finalURL     *urlmodel.URL

	decodeEnabled bool
	charsetHint   string
	decodedPartial bool

	Timings timing.Metrics
	Conn    transport.Metadata
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Status returns "NNN Reason Phrase".
func (r *Response) Status() string {
	if r.reasonPhrase == "" {
		return strconv.Itoa(r.statusCode)
	}
	return strconv.Itoa(r.statusCode) + " " + r.reasonPhrase
}

// Headers returns the response header set.
func (r *Response) Headers() *headers.Set { return r.headers }

// FinalURL returns the URL the response was ultimately received from
// (the last hop of a redirect chain, or the original URL).
func (r *Response) FinalURL() *urlmodel.URL { return r.finalURL }

// BodyRaw returns the bytes received after dechunking but before
// content-encoding decompression.
func (r *Response) BodyRaw() []byte {
	if !r.bodyRaw.IsSpilled() {
		return r.bodyRaw.Bytes()
	}
	rc, err := r.bodyRaw.Reader()
	if err != nil {
		return nil
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	return data
}

// DecodedPartial reports whether content decoding left an unknown
// Content-Encoding coding undecoded.
func (r *Response) DecodedPartial() bool { return r.decodedPartial }

// Binary applies content-encoding decompression (if decode_enabled) and
// returns the raw decoded bytes.
func (r *Response) Binary() ([]byte, error) {
	if !r.decodeEnabled {
		return r.BodyRaw(), nil
	}
	result, err := bodycodec.DecodeContentEncoding(r.BodyRaw(), r.contentEncoding())
	if err != nil {
		return nil, err
	}
	r.decodedPartial = result.Partial
	return result.Data, nil
}

// Text applies the decoder (if enabled) then decodes the result to a UTF-8
// string per the charset priority chain.
func (r *Response) Text() (string, error) {
	data, err := r.Binary()
	if err != nil {
		return "", err
	}
	ct, _ := r.headers.Get("Content-Type")
	return bodycodec.DecodeCharset(data, r.charsetHint, ct), nil
}

// Decode forces decoding with an explicit byte cap, refusing with
// BodyTooLarge rather than silently truncating.
func (r *Response) Decode(limitBytes int64) ([]byte, error) {
	if limitBytes > 0 && int64(len(r.BodyRaw())) > limitBytes {
		return nil, errors.NewBodyTooLargeError(limitBytes)
	}
	result, err := bodycodec.DecodeContentEncoding(r.BodyRaw(), r.contentEncoding())
	if err != nil {
		return nil, err
	}
	r.decodedPartial = result.Partial
	data := result.Data
	if limitBytes > 0 && int64(len(data)) > limitBytes {
		return nil, errors.NewBodyTooLargeError(limitBytes)
	}
	return data, nil
}

func (r *Response) contentEncoding() string {
	v, _ := r.headers.Get("Content-Encoding")
	return v
}

// reasonFromStatusLine extracts the reason phrase from a raw "HTTP/1.1 200 OK" line.
func reasonFromStatusLine(statusLine string) string {
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
