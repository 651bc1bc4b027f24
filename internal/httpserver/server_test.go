package httpserver

import (
	"net/http"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(8080, http.NotFoundHandler(), Options{})
	if srv.Addr() != ":8080" {
		t.Fatalf("unexpected addr %q", srv.Addr())
	}
	if srv.inner.WriteTimeout != 5*time.Minute {
		t.Fatalf("expected upload-friendly write timeout, got %s", srv.inner.WriteTimeout)
	}
	if srv.inner.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("unexpected read header timeout %s", srv.inner.ReadHeaderTimeout)
	}
}

func TestNewKeepsOverrides(t *testing.T) {
	srv := New(9000, http.NotFoundHandler(), Options{WriteTimeout: time.Second})
	if srv.inner.WriteTimeout != time.Second {
		t.Fatalf("expected override, got %s", srv.inner.WriteTimeout)
	}
}
