package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_Render(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Renderer-Signature")
		if want := "sha256=" + SignPayload(body, "secret"); gotSig != want {
			t.Errorf("signature = %q, want %q", gotSig, want)
		}
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.FileName != "INV-1.pdf" || !strings.Contains(req.Markup, "<html>") {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://cdn.example.com/INV-1.pdf"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	url, err := c.Render(context.Background(), Request{FileName: "INV-1.pdf", Markup: "<html></html>"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if url != "https://cdn.example.com/INV-1.pdf" {
		t.Errorf("unexpected url %s", url)
	}
	if gotSig == "" {
		t.Error("expected signature header")
	}
}

func TestClient_RenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Render(context.Background(), Request{FileName: "x.pdf"})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected 500 error, got %v", err)
	}
}

func TestClient_RenderEmptyURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Render(context.Background(), Request{FileName: "x.pdf"})
	if !errors.Is(err, ErrEmptyURL) {
		t.Errorf("expected ErrEmptyURL, got %v", err)
	}
}

func TestClient_RenderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewClient(srv.URL, "", 50*time.Millisecond).Render(context.Background(), Request{FileName: "x.pdf"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("render was not bounded by timeout")
	}
}

func TestClient_NotConfigured(t *testing.T) {
	if _, err := NewClient("", "", time.Second).Render(context.Background(), Request{}); err == nil {
		t.Error("expected error for missing endpoint")
	}
}
