package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"user error", &userError{errors.New("bad flag")}, 1},
		{"4xx api error", &apiError{status: http.StatusNotFound}, 1},
		{"5xx api error", &apiError{status: http.StatusInternalServerError}, 2},
		{"plain transport error", errors.New("connection refused"), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCodeFor(tc.err); got != tc.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestApiClientRequest(t *testing.T) {
	var gotAuth, gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, token: "secret", http: srv.Client()}
	data, err := client.request(context.Background(), http.MethodGet, "/object/replicante.io/v0/namespace/default", nil)
	if err != nil {
		t.Fatalf("request returned error: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", data)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token forwarded, got %q", gotAuth)
	}
	if gotMethod != http.MethodGet || gotPath != "/object/replicante.io/v0/namespace/default" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
}

func TestApiClientRequestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	client := &apiClient{baseURL: srv.URL, http: srv.Client()}
	_, err := client.request(context.Background(), http.MethodGet, "/object/replicante.io/v0/namespace/missing", nil)
	if err == nil {
		t.Fatalf("expected error for 400 response")
	}
	var aerr *apiError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *apiError, got %T", err)
	}
	if aerr.status != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", aerr.status)
	}
}

func TestContextConfigureUseList(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REPLICTL_CONFIG", filepath.Join(dir, "config.yaml"))

	if err := handleContextConfigure([]string{"--addr", "http://a.example", "--token", "tok-a", "a"}); err != nil {
		t.Fatalf("configure a: %v", err)
	}
	if err := handleContextConfigure([]string{"--addr", "http://b.example", "b"}); err != nil {
		t.Fatalf("configure b: %v", err)
	}

	cfg, _, err := loadContextConfig()
	if err != nil {
		t.Fatalf("loadContextConfig: %v", err)
	}
	if cfg.Current != "a" {
		t.Fatalf("expected first-configured context to become current, got %q", cfg.Current)
	}
	if len(cfg.Contexts) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(cfg.Contexts))
	}

	if err := handleContextUse([]string{"b"}); err != nil {
		t.Fatalf("use b: %v", err)
	}
	addr, token, err := resolveEndpoint("", "")
	if err != nil {
		t.Fatalf("resolveEndpoint: %v", err)
	}
	if addr != "http://b.example" {
		t.Fatalf("expected active context addr http://b.example, got %q", addr)
	}
	if token != "" {
		t.Fatalf("expected context b to carry no token, got %q", token)
	}

	if err := handleContextUse([]string{"missing"}); err == nil {
		t.Fatalf("expected error switching to unconfigured context")
	}
}

func TestResolveEndpointFlagOverridesContext(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REPLICTL_CONFIG", filepath.Join(dir, "config.yaml"))
	if err := handleContextConfigure([]string{"--addr", "http://ctx.example", "only"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	addr, token, err := resolveEndpoint("http://flag.example", "flag-token")
	if err != nil {
		t.Fatalf("resolveEndpoint: %v", err)
	}
	if addr != "http://flag.example" || token != "flag-token" {
		t.Fatalf("expected explicit flags to win, got addr=%q token=%q", addr, token)
	}
}

func TestRunUnknownCommandIsUserError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REPLICTL_CONFIG", filepath.Join(dir, "config.yaml"))
	if code := run(context.Background(), []string{"bogus-command"}); code != 1 {
		t.Fatalf("expected exit code 1 for unknown command, got %d", code)
	}
}

func TestRunNoArgsPrintsUsage(t *testing.T) {
	if code := run(context.Background(), nil); code != 1 {
		t.Fatalf("expected exit code 1 for no arguments, got %d", code)
	}
}

func TestMainEntrypointIsDefined(t *testing.T) {
	// main calls os.Exit, so it is only referenced here, not run; the test
	// fails to compile if the entrypoint is removed.
	_ = main
}
