package main

import (
	"context"
	"fmt"
	"net/http"
)

// handleOAction implements `replictl o-action {get|list}` against
// /object|/list/replicante.io/v0/oaction/{ns}/{cluster}/... (spec.md §6).
// approve/cancel ride along too since they share the same scoped key and
// the REST surface already exposes them next to get/list.
func handleOAction(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  replictl o-action get <ns> <cluster-id> <action-id>
  replictl o-action list <ns> <cluster-id>
  replictl o-action approve <ns> <cluster-id> <action-id>
  replictl o-action cancel <ns> <cluster-id> <action-id>`)
		return nil
	}
	switch args[0] {
	case "get":
		ns, cluster, action, err := requireScopedAction(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/object/replicante.io/v0/oaction/%s/%s/%s", ns, cluster, action), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "list":
		ns, cluster, err := requireNsCluster(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/list/replicante.io/v0/oaction/%s/%s", ns, cluster), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "approve":
		ns, cluster, action, err := requireScopedAction(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, path("/object/replicante.io/v0/oaction/%s/%s/%s/approve", ns, cluster, action), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "cancel":
		ns, cluster, action, err := requireScopedAction(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, path("/object/replicante.io/v0/oaction/%s/%s/%s/cancel", ns, cluster, action), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return &userError{fmt.Errorf("unknown o-action subcommand %q", args[0])}
	}
	return nil
}

// handleNAction implements `replictl n-action {get|list|approve|reject}`
// against /object|/list/replicante.io/v0/naction/{ns}/{cluster}/... (spec.md §6).
func handleNAction(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  replictl n-action get <ns> <cluster-id> <action-id>
  replictl n-action list <ns> <cluster-id>
  replictl n-action approve <ns> <cluster-id> <action-id>
  replictl n-action reject <ns> <cluster-id> <action-id>`)
		return nil
	}
	switch args[0] {
	case "get":
		ns, cluster, action, err := requireScopedAction(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/object/replicante.io/v0/naction/%s/%s/%s", ns, cluster, action), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "list":
		ns, cluster, err := requireNsCluster(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodGet, path("/list/replicante.io/v0/naction/%s/%s", ns, cluster), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "approve":
		ns, cluster, action, err := requireScopedAction(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, path("/object/replicante.io/v0/naction/%s/%s/%s/approve", ns, cluster, action), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	case "reject":
		ns, cluster, action, err := requireScopedAction(args[1:])
		if err != nil {
			return err
		}
		data, err := client.request(ctx, http.MethodPost, path("/object/replicante.io/v0/naction/%s/%s/%s/reject", ns, cluster, action), nil)
		if err != nil {
			return err
		}
		prettyPrint(data)
	default:
		return &userError{fmt.Errorf("unknown n-action subcommand %q", args[0])}
	}
	return nil
}

func requireScopedAction(args []string) (string, string, string, error) {
	if len(args) != 3 || args[0] == "" || args[1] == "" || args[2] == "" {
		return "", "", "", &userError{fmt.Errorf("expected exactly three arguments: <ns> <cluster-id> <action-id>")}
	}
	return args[0], args[1], args[2], nil
}
