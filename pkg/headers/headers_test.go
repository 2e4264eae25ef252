package headers

import (
	"strings"
	"testing"
)

func TestAddAndGetCaseInsensitive(t *testing.T) {
	h := New()
	if err := h.Add("content-type", "text/plain"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	v, ok := h.Get("Content-Type")
	if !ok || v != "text/plain" {
		t.Fatalf("Get(Content-Type) = %q, %v", v, ok)
	}
}

func TestAddPreservesDuplicates(t *testing.T) {
	h := New()
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	vals := h.Values("set-cookie")
	if len(vals) != 2 || vals[0] != "a=1" || vals[1] != "b=2" {
		t.Fatalf("Values() = %v", vals)
	}
}

func TestSetReplacesAllValues(t *testing.T) {
	h := New()
	h.Add("X-Test", "1")
	h.Add("X-Test", "2")
	h.Set("X-Test", "3")

	vals := h.Values("X-Test")
	if len(vals) != 1 || vals[0] != "3" {
		t.Fatalf("Values() after Set = %v", vals)
	}
}

func TestRejectsCRLF(t *testing.T) {
	h := New()
	if err := h.Add("X-Test", "bad\r\nvalue"); err == nil {
		t.Fatalf("expected error for CRLF in value")
	}
	if err := h.Add("X-Bad\r\n", "value"); err == nil {
		t.Fatalf("expected error for CRLF in name")
	}
}

func TestDel(t *testing.T) {
	h := New()
	h.Add("X-Test", "1")
	h.Del("x-test")
	if h.Has("X-Test") {
		t.Fatalf("expected header removed")
	}
}

func TestWriteTo(t *testing.T) {
	h := New()
	h.Add("Host", "example.test")
	h.Add("Accept", "*/*")

	var sb strings.Builder
	if _, err := h.WriteTo(&sb); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	want := "Host: example.test\r\nAccept: */*\r\n"
	if sb.String() != want {
		t.Fatalf("WriteTo() = %q, want %q", sb.String(), want)
	}
}

func TestClone(t *testing.T) {
	h := New()
	h.Add("X-Test", "1")
	clone := h.Clone()
	clone.Add("X-Test", "2")

	if len(h.Values("X-Test")) != 1 {
		t.Fatalf("original mutated by clone")
	}
	if len(clone.Values("X-Test")) != 2 {
		t.Fatalf("clone missing appended value")
	}
}
