package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// handleApply implements `replictl apply -f <file>`, POSTing a manifest's
// raw bytes to /apply (spec.md §6: "Body is YAML or JSON"). The file is
// parsed locally first only to catch typos before round-tripping to the
// server, which performs the authoritative per-kind schema validation.
func handleApply(ctx context.Context, client *apiClient, args []string) error {
	fs := newFlagSet("apply")
	var file string
	fs.StringVar(&file, "f", "", "Path to a YAML or JSON manifest (required)")
	if err := fs.Parse(args); err != nil {
		return &userError{err}
	}
	if file == "" {
		return &userError{fmt.Errorf("-f <manifest file> is required")}
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return &userError{fmt.Errorf("read manifest %q: %w", file, err)}
	}

	var probe struct {
		Kind string `yaml:"kind" json:"kind"`
	}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return &userError{fmt.Errorf("manifest %q is not valid YAML/JSON: %w", file, err)}
	}
	if probe.Kind == "" {
		return &userError{fmt.Errorf("manifest %q is missing required field \"kind\"", file)}
	}

	contentType := "application/yaml"
	if strings.HasSuffix(file, ".json") {
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/apply", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if client.token != "" {
		req.Header.Set("Authorization", "Bearer "+client.token)
	}
	resp, err := client.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, method: http.MethodPost, path: "/apply", body: strings.TrimSpace(string(data))}
	}
	prettyPrint(data)
	return nil
}
