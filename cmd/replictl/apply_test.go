package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHandleApplyRoundTrip(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"kind":"Namespace","status":"applied"}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	manifest := filepath.Join(dir, "ns.yaml")
	if err := os.WriteFile(manifest, []byte("kind: Namespace\nspec:\n  id: default\n  status: Active\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	client := &apiClient{baseURL: srv.URL, http: srv.Client()}
	if err := handleApply(context.Background(), client, []string{"-f", manifest}); err != nil {
		t.Fatalf("handleApply returned error: %v", err)
	}
	if gotContentType != "application/yaml" {
		t.Fatalf("expected yaml content type, got %q", gotContentType)
	}
	if len(gotBody) == 0 {
		t.Fatalf("expected request body to be forwarded")
	}
}

func TestHandleApplyMissingFileFlag(t *testing.T) {
	client := &apiClient{baseURL: "http://unused", http: http.DefaultClient}
	err := handleApply(context.Background(), client, nil)
	if err == nil {
		t.Fatalf("expected error when -f is missing")
	}
	if _, ok := err.(*userError); !ok {
		t.Fatalf("expected *userError, got %T", err)
	}
}

func TestHandleApplyRejectsManifestWithoutKind(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(manifest, []byte("spec:\n  id: default\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	client := &apiClient{baseURL: "http://unused", http: http.DefaultClient}
	err := handleApply(context.Background(), client, []string{"-f", manifest})
	if err == nil {
		t.Fatalf("expected error for manifest missing kind")
	}
}
