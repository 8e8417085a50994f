package main

import (
	"context"
	"fmt"
	"net/http"
)

// handleClusterSpec implements `replictl cluster-spec {get|list|delete|orchestrate}`
// against /object|/list/replicante.io/v0/clusterspec/... (spec.md §6).
func handleClusterSpec(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  replictl cluster-spec get <ns> <cluster-id>
  replictl cluster-spec list <ns>
  replictl cluster-spec delete <ns> <cluster-id>
  replictl cluster-spec orchestrate <ns> <cluster-id>`)
		return nil
	}
	switch args[0] {
	case "get":
		ns, cluster, err := requireNsCluster(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/object/replicante.io/v0/clusterspec/%s/%s", ns, cluster), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "list":
		ns, err := requireNs(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/list/replicante.io/v0/clusterspec/%s", ns), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "delete":
		ns, cluster, err := requireNsCluster(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodDelete, path("/object/replicante.io/v0/clusterspec/%s/%s", ns, cluster), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "orchestrate":
		ns, cluster, err := requireNsCluster(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/object/replicante.io/v0/clusterspec/%s/%s/orchestrate", ns, cluster), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return &userError{fmt.Errorf("unknown cluster-spec subcommand %q", args[0])}
	}
	return nil
}

// handlePlatform implements `replictl platform {get|list|delete}` against
// /object|/list/replicante.io/v0/platform/... (spec.md §6).
func handlePlatform(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  replictl platform get <ns> <name>
  replictl platform list <ns>
  replictl platform delete <ns> <name>`)
		return nil
	}
	switch args[0] {
	case "get":
		ns, name, err := requireNsCluster(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/object/replicante.io/v0/platform/%s/%s", ns, name), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "list":
		ns, err := requireNs(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/list/replicante.io/v0/platform/%s", ns), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "delete":
		ns, name, err := requireNsCluster(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodDelete, path("/object/replicante.io/v0/platform/%s/%s", ns, name), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return &userError{fmt.Errorf("unknown platform subcommand %q", args[0])}
	}
	return nil
}

func path(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func requireNs(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", &userError{fmt.Errorf("expected exactly one argument: <ns>")}
	}
	return args[0], nil
}

func requireNsCluster(args []string) (string, string, error) {
	if len(args) != 2 || args[0] == "" || args[1] == "" {
		return "", "", &userError{fmt.Errorf("expected exactly two arguments: <ns> <id>")}
	}
	return args[0], args[1], nil
}
