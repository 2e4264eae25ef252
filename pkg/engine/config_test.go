package engine

import (
	"testing"

	"github.com/whileendless/go-rawhttp-core/pkg/headers"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

func TestBuilderFreezeRequiresMethodAndURL(t *testing.T) {
	b := New()
	if _, err := b.BuildSync(); err == nil {
		t.Fatalf("expected error for empty builder")
	}
}

func TestBuilderFreezeRejectsConnectOnNonWebSocketURL(t *testing.T) {
	b := New().Connect("http://example.test/")
	if _, err := b.BuildSync(); err == nil {
		t.Fatalf("expected error for Connect() on a non-ws URL")
	}
}

func TestBuilderJSONSetsContentType(t *testing.T) {
	b := New().Post("http://example.test/").JSON(map[string]int{"a": 1})
	h, err := b.BuildSync()
	if err != nil {
		t.Fatalf("BuildSync error: %v", err)
	}
	ct, ok := h.cfg.Headers.Get("Content-Type")
	if !ok || ct != "application/json" {
		t.Fatalf("Content-Type = %q, %v", ct, ok)
	}
	if string(h.cfg.Body) != `{"a":1}` {
		t.Fatalf("Body = %q", h.cfg.Body)
	}
}

func TestBuilderJSONRespectsExistingContentType(t *testing.T) {
	hs := headers.New()
	hs.Set("Content-Type", "application/vnd.custom+json")
	b := New().Post("http://example.test/").Headers(hs).JSON(map[string]int{"a": 1})
	h, err := b.BuildSync()
	if err != nil {
		t.Fatalf("BuildSync error: %v", err)
	}
	ct, _ := h.cfg.Headers.Get("Content-Type")
	if ct != "application/vnd.custom+json" {
		t.Fatalf("Content-Type = %q, want preserved custom value", ct)
	}
}

func TestBuilderTextSetsContentType(t *testing.T) {
	b := New().Post("http://example.test/").Text("hello")
	h, err := b.BuildSync()
	if err != nil {
		t.Fatalf("BuildSync error: %v", err)
	}
	ct, _ := h.cfg.Headers.Get("Content-Type")
	if ct != "text/plain; charset=utf-8" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestBuilderDefaultsApplied(t *testing.T) {
	b := New().Get("http://example.test/")
	h, err := b.BuildSync()
	if err != nil {
		t.Fatalf("BuildSync error: %v", err)
	}
	if h.cfg.MaxRedirects == 0 {
		t.Fatalf("expected default MaxRedirects to be applied")
	}
	if h.cfg.ReadBufferSize == 0 {
		t.Fatalf("expected default ReadBufferSize to be applied")
	}
	if h.cfg.Timeout == 0 {
		t.Fatalf("expected default Timeout to be applied")
	}
}

func TestOverlayManagedHeadersOverridesUserHost(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/")
	base := headers.New()
	base.Set("Host", "attacker.test")
	base.Set("X-Custom", "1")

	wire := overlayManagedHeaders(base, "GET", u, nil, false, false)
	host, _ := wire.Get("Host")
	if host != "example.test" {
		t.Fatalf("Host = %q, want overridden to example.test", host)
	}
	if custom, _ := wire.Get("X-Custom"); custom != "1" {
		t.Fatalf("expected user header preserved, got %q", custom)
	}
}

func TestOverlayManagedHeadersSetsContentLengthForBody(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/")
	wire := overlayManagedHeaders(headers.New(), "POST", u, []byte("hello"), false, false)
	cl, ok := wire.Get("Content-Length")
	if !ok || cl != "5" {
		t.Fatalf("Content-Length = %q, %v", cl, ok)
	}
}

func TestOverlayManagedHeadersPreservesUserAcceptEncodingWhenDecodeDisabled(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/")
	base := headers.New()
	base.Set("Accept-Encoding", "identity")

	wire := overlayManagedHeaders(base, "GET", u, nil, false, false)
	ae, ok := wire.Get("Accept-Encoding")
	if !ok || ae != "identity" {
		t.Fatalf("Accept-Encoding = %q, %v, want preserved %q", ae, ok, "identity")
	}
}

func TestOverlayManagedHeadersOmitsAcceptEncodingWhenAbsentAndDecodeDisabled(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/")
	wire := overlayManagedHeaders(headers.New(), "GET", u, nil, false, false)
	if wire.Has("Accept-Encoding") {
		t.Fatalf("did not expect Accept-Encoding when caller never set one and decode is disabled")
	}
}

func TestOverlayManagedHeadersDecodeEnabledOverridesUserAcceptEncoding(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/")
	base := headers.New()
	base.Set("Accept-Encoding", "identity")

	wire := overlayManagedHeaders(base, "GET", u, nil, false, true)
	ae, _ := wire.Get("Accept-Encoding")
	if ae != "gzip, deflate, br, zstd" {
		t.Fatalf("Accept-Encoding = %q, want decode-enabled default", ae)
	}
}

func TestOverlayManagedHeadersChunkedOmitsContentLength(t *testing.T) {
	u, _ := urlmodel.Parse("http://example.test/")
	wire := overlayManagedHeaders(headers.New(), "POST", u, []byte("hello"), true, false)
	if wire.Has("Content-Length") {
		t.Fatalf("did not expect Content-Length when chunked")
	}
	te, _ := wire.Get("Transfer-Encoding")
	if te != "chunked" {
		t.Fatalf("Transfer-Encoding = %q", te)
	}
}
