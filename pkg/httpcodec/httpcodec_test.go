package httpcodec

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/headers"
	"github.com/whileendless/go-rawhttp-core/pkg/timing"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

func TestWriteRequestAddsHostWhenAbsent(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/a/b?x=1")
	h := headers.New()
	h.Set("Accept", "*/*")

	var buf bytes.Buffer
	if err := WriteRequest(&buf, &Request{Method: "GET", URL: u, Headers: h}); err != nil {
		t.Fatalf("WriteRequest error: %v", err)
	}

	wire := buf.String()
	if !strings.HasPrefix(wire, "GET /a/b?x=1 HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line: %q", wire)
	}
	if strings.Count(wire, "Host:") != 1 {
		t.Fatalf("expected exactly one Host header, got: %q", wire)
	}
	if !strings.Contains(wire, "Host: example.test\r\n") {
		t.Fatalf("expected default-port Host, got: %q", wire)
	}
}

func TestWriteRequestNeverOverridesUserHost(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/")
	h := headers.New()
	h.Set("Host", "custom.test")

	var buf bytes.Buffer
	if err := WriteRequest(&buf, &Request{Method: "GET", URL: u, Headers: h}); err != nil {
		t.Fatalf("WriteRequest error: %v", err)
	}

	if strings.Count(buf.String(), "Host:") != 1 {
		t.Fatalf("expected exactly one Host header, got: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "Host: custom.test\r\n") {
		t.Fatalf("expected user Host preserved, got: %q", buf.String())
	}
}

func TestWriteRequestAbsoluteForm(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/a")
	h := headers.New()

	var buf bytes.Buffer
	WriteRequest(&buf, &Request{Method: "GET", URL: u, Headers: h, UseAbsoluteForm: true})

	if !strings.HasPrefix(buf.String(), "GET http://example.test/a HTTP/1.1\r\n") {
		t.Fatalf("expected absolute-form request line, got: %q", buf.String())
	}
}

func TestReadResponseContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
	resp, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)), "GET", Limits{}, timing.NewTimer())
	if err != nil {
		t.Fatalf("ReadResponse error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body.Bytes()) != "hello" {
		t.Fatalf("Body = %q, want %q", resp.Body.Bytes(), "hello")
	}
}

func TestReadResponseChunked(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	resp, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)), "GET", Limits{}, timing.NewTimer())
	if err != nil {
		t.Fatalf("ReadResponse error: %v", err)
	}
	if string(resp.Body.Bytes()) != "hello world" {
		t.Fatalf("Body = %q, want %q", resp.Body.Bytes(), "hello world")
	}
}

func TestReadResponseChunkedWinsOverContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 999\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"
	resp, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)), "GET", Limits{}, timing.NewTimer())
	if err != nil {
		t.Fatalf("ReadResponse error: %v", err)
	}
	if string(resp.Body.Bytes()) != "hello" {
		t.Fatalf("Body = %q, want %q (chunked should win the tie-break)", resp.Body.Bytes(), "hello")
	}
}

func TestReadResponseHeadHasNoBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n"
	resp, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)), "HEAD", Limits{}, timing.NewTimer())
	if err != nil {
		t.Fatalf("ReadResponse error: %v", err)
	}
	if resp.Body.Size() != 0 {
		t.Fatalf("expected empty body for HEAD, got %d bytes", resp.Body.Size())
	}
}

func TestReadResponseRefusesOversizedHeaders(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nX-Big: " + strings.Repeat("a", 1000) + "\r\n\r\n"
	_, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)), "GET", Limits{MaxHeaderBytes: 64}, timing.NewTimer())
	if err == nil {
		t.Fatalf("expected HeadersTooLarge error")
	}
}

func TestReadResponseTruncatedContentLengthIsError(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\nshort"
	resp, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)), "GET", Limits{}, timing.NewTimer())
	if err == nil {
		t.Fatalf("expected error for truncated Content-Length body")
	}
	if errors.GetErrorCode(err) != errors.CodeUnexpectedEOF {
		t.Fatalf("expected CodeUnexpectedEOF, got %v", err)
	}
	if resp == nil || !resp.DecodedPartial {
		t.Fatalf("expected DecodedPartial to be set, got %+v", resp)
	}
}

func TestReadResponseUntilClose(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\nbody without length"
	resp, err := ReadResponse(bufio.NewReader(strings.NewReader(raw)), "GET", Limits{}, timing.NewTimer())
	if err != nil {
		t.Fatalf("ReadResponse error: %v", err)
	}
	if string(resp.Body.Bytes()) != "body without length" {
		t.Fatalf("Body = %q", resp.Body.Bytes())
	}
}
