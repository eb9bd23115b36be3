package tool

import (
	"testing"
)

func TestResolveRedirectTarget(t *testing.T) {
	cases := []struct {
		current  string
		location string
		want     string
	}{
		{"http://example.com/old", "/new-page", "http://example.com/new-page"},
		{"http://example.com/a/b", "c", "http://example.com/a/c"},
		{"http://example.com/a/b", "../x", "http://example.com/x"},
		{"http://example.com/old", "http://docs.example.com/page", "http://docs.example.com/page"},
		{"https://example.com/old", "//cdn.example.com/asset", "https://cdn.example.com/asset"},
		{"http://example.com/old?q=1", "?q=2", "http://example.com/old?q=2"},
	}
	for _, c := range cases {
		got, err := resolveRedirectTarget(c.current, c.location)
		if err != nil {
			t.Errorf("resolveRedirectTarget(%q, %q): %v", c.current, c.location, err)
			continue
		}
		if got != c.want {
			t.Errorf("resolveRedirectTarget(%q, %q) = %q, want %q", c.current, c.location, got, c.want)
		}
	}
}

func TestResolveRedirectTarget_AbsoluteLoopbackStaysRejectable(t *testing.T) {
	// A redirect to loopback must survive resolution unchanged so the SSRF
	// validator sees the real target.
	got, err := resolveRedirectTarget("http://example.com/old", "http://127.0.0.1/admin")
	if err != nil {
		t.Fatalf("resolveRedirectTarget: %v", err)
	}
	if got != "http://127.0.0.1/admin" {
		t.Fatalf("got %q", got)
	}
}
