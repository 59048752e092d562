package netutil

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeIP(t *testing.T) {
	canonical := map[string]string{
		"198.51.100.7:40000":     "198.51.100.7",
		"[2001:db8::2]:8443":     "2001:db8::2",
		"[::1]:http":             "::1",
		"198.51.100.7":           "198.51.100.7",
		"::ffff:198.51.100.7":    "198.51.100.7",
		"[::ffff:10.0.0.1]:9":    "10.0.0.1",
		"fe80::abcd%en0":         "fe80::abcd",
		" 2001:DB8:0:0:0:0:0:3 ": "2001:db8::3",
	}
	for in, want := range canonical {
		got, ok := NormalizeIP(in)
		if !ok || got != want {
			t.Errorf("NormalizeIP(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}

	for _, in := range []string{"", "   ", "localhost", "300.1.1.1"} {
		if _, ok := NormalizeIP(in); ok {
			t.Errorf("NormalizeIP(%q) accepted", in)
		}
	}
}

func TestClientIPUsesRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/health", nil)
	r.RemoteAddr = "[::ffff:10.1.2.3]:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	if got := ClientIP(r); got != "10.1.2.3" {
		t.Fatalf("ClientIP = %q", got)
	}
}
