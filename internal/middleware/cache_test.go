package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCacheableSkipsOversizedBody(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		size, limit int64
		want        bool
	}{
		{"ok within limit", http.StatusOK, 100, 1024, true},
		{"ok at exact limit", http.StatusOK, 1024, 1024, true},
		{"ok over limit", http.StatusOK, 1025, 1024, false},
		{"unbounded limit", http.StatusOK, 1 << 30, 0, true},
		{"error status", http.StatusInternalServerError, 10, 1024, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cacheable(tc.status, tc.size, tc.limit); got != tc.want {
				t.Fatalf("cacheable(%d, %d, %d) = %v, want %v", tc.status, tc.size, tc.limit, got, tc.want)
			}
		})
	}
}

func TestCaptureWriterStreamsPastLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 8}

	if _, err := cw.Write([]byte("0123456789")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The client sees the full body; the buffer stops at the limit and the
	// size keeps counting so the store decision can detect the overflow.
	if got := rec.Body.String(); got != "0123456789" {
		t.Fatalf("client body = %q", got)
	}
	if got := cw.buf.String(); got != "01234567" {
		t.Fatalf("buffered = %q, want first 8 bytes", got)
	}
	if cw.size != 10 {
		t.Fatalf("size = %d, want 10", cw.size)
	}
	if cacheable(cw.status, cw.size, cw.limit) {
		t.Fatal("overflowed capture must not be cacheable")
	}
}
