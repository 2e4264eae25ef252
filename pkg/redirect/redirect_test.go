package redirect

import (
	"testing"

	"github.com/whileendless/go-rawhttp-core/pkg/errors"
	"github.com/whileendless/go-rawhttp-core/pkg/urlmodel"
)

func mustParse(t *testing.T, raw string) *urlmodel.URL {
	t.Helper()
	u, err := urlmodel.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q) error: %v", raw, err)
	}
	return u
}

func TestRedirectLoopDetected(t *testing.T) {
	ctrl := NewController(8)
	a := mustParse(t, "http://example.test/a")

	d1, err := ctrl.Next(a, 302, "/b", "GET")
	if err != nil {
		t.Fatalf("first hop failed: %v", err)
	}

	if d1.NextURL.Path != "/b" {
		t.Fatalf("first hop NextURL = %s, want path /b", d1.NextURL)
	}

	// B redirects back to A, which the first hop already recorded as visited.
	_, err = ctrl.Next(d1.NextURL, 302, "/a", "GET")
	if err == nil {
		t.Fatalf("expected RedirectLoop error")
	}
	if errors.GetErrorCode(err) != errors.CodeRedirectLoop {
		t.Fatalf("expected CodeRedirectLoop, got %v", err)
	}
}

func TestTooManyRedirects(t *testing.T) {
	ctrl := NewController(2)
	cur := mustParse(t, "http://example.test/0")

	for i, loc := range []string{"/hop1", "/hop2"} {
		d, err := ctrl.Next(cur, 302, loc, "GET")
		if err != nil {
			t.Fatalf("hop %d failed: %v", i, err)
		}
		cur = d.NextURL
	}

	if _, err := ctrl.Next(cur, 302, "/overflow", "GET"); err == nil {
		t.Fatalf("expected TooManyRedirects error")
	}
}

func TestMissingLocationIsMalformed(t *testing.T) {
	ctrl := NewController(8)
	cur := mustParse(t, "http://example.test/")
	if _, err := ctrl.Next(cur, 302, "", "GET"); err == nil {
		t.Fatalf("expected MalformedRedirect error")
	}
}

func TestPostBecomesGetOn302(t *testing.T) {
	ctrl := NewController(8)
	cur := mustParse(t, "http://example.test/submit")
	d, err := ctrl.Next(cur, 302, "/done", "POST")
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if d.NextMethod != "GET" || !d.DropBody {
		t.Fatalf("expected method rewritten to GET with body dropped, got %+v", d)
	}
}

func TestPutBecomesGetOn302(t *testing.T) {
	ctrl := NewController(8)
	cur := mustParse(t, "http://example.test/resource")
	d, err := ctrl.Next(cur, 302, "/done", "PUT")
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if d.NextMethod != "GET" || !d.DropBody {
		t.Fatalf("expected method rewritten to GET with body dropped, got %+v", d)
	}
}

func TestPatchBecomesGetOn301(t *testing.T) {
	ctrl := NewController(8)
	cur := mustParse(t, "http://example.test/resource")
	d, err := ctrl.Next(cur, 301, "/done", "PATCH")
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if d.NextMethod != "GET" || !d.DropBody {
		t.Fatalf("expected method rewritten to GET with body dropped, got %+v", d)
	}
}

func TestMethodPreservedOn307(t *testing.T) {
	ctrl := NewController(8)
	cur := mustParse(t, "http://example.test/submit")
	d, err := ctrl.Next(cur, 307, "/done", "POST")
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if d.NextMethod != "POST" || d.DropBody {
		t.Fatalf("expected method and body preserved, got %+v", d)
	}
}

func TestAuthorizationStrippedOnHostChange(t *testing.T) {
	ctrl := NewController(8)
	cur := mustParse(t, "http://a.test/")
	d, err := ctrl.Next(cur, 302, "http://b.test/", "GET")
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if !d.StripAuth {
		t.Fatalf("expected Authorization to be stripped on host change")
	}
}

func TestAuthorizationKeptOnSameOrigin(t *testing.T) {
	ctrl := NewController(8)
	cur := mustParse(t, "http://a.test/x")
	d, err := ctrl.Next(cur, 302, "/y", "GET")
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if d.StripAuth {
		t.Fatalf("did not expect Authorization stripped on same-origin redirect")
	}
}
