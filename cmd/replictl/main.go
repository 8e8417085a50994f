// Command replictl is the operator CLI for replicore's REST API (spec.md
// §6). Grounded on the teacher's cmd/slctl/main.go dispatch shape
// (_examples/r3e-network-service_layer/cmd/slctl/main.go): a root flag.FlagSet
// for global flags, a switch on the first positional argument, and a thin
// JSON-over-HTTP apiClient. No CLI framework dependency, matching the
// teacher (SPEC_FULL.md explicitly calls out "robust CLI UX" as a
// non-goal — this stays flag-based and un-fancy on purpose).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/replicante-io/replicore/pkg/version"
)

// userError marks a mistake in how replictl was invoked (bad flags,
// missing arguments) as opposed to a failure talking to the server.
// Mapped to exit code 1 (spec.md §6: "1 user error").
type userError struct{ err error }

func (e *userError) Error() string { return e.err.Error() }
func (e *userError) Unwrap() error { return e.err }

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// run returns the process exit code per spec.md §6: 0 success, 1 user
// error, 2 server error.
func run(ctx context.Context, args []string) int {
	root := newFlagSet("replictl")
	addrFlag := root.String("addr", "", "replicore REST API base URL (overrides the active context)")
	tokenFlag := root.String("token", "", "Bearer token (overrides the active context)")
	timeoutFlag := root.Duration("timeout", 15*time.Second, "HTTP request timeout")
	showVersion := root.Bool("version", false, "Print replictl build information and exit")
	if err := root.Parse(args); err != nil {
		printRootUsage()
		fmt.Fprintf(os.Stderr, "replictl: %v\n", err)
		return 1
	}
	if *showVersion {
		fmt.Println(version.FullVersion())
		return 0
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		printRootUsage()
		return 1
	}

	addr, token, err := resolveEndpoint(*addrFlag, *tokenFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replictl: %v\n", err)
		return 1
	}
	client := &apiClient{
		baseURL: strings.TrimRight(addr, "/"),
		token:   token,
		http:    &http.Client{Timeout: *timeoutFlag},
	}

	var cmdErr error
	switch remaining[0] {
	case "apply":
		cmdErr = handleApply(ctx, client, remaining[1:])
	case "cluster-spec":
		cmdErr = handleClusterSpec(ctx, client, remaining[1:])
	case "o-action":
		cmdErr = handleOAction(ctx, client, remaining[1:])
	case "n-action":
		cmdErr = handleNAction(ctx, client, remaining[1:])
	case "platform":
		cmdErr = handlePlatform(ctx, client, remaining[1:])
	case "context":
		cmdErr = handleContext(remaining[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return 0
	default:
		cmdErr = &userError{fmt.Errorf("unknown command %q", remaining[0])}
	}

	if cmdErr == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "replictl: %v\n", cmdErr)
	return exitCodeFor(cmdErr)
}

// exitCodeFor maps an error to spec.md §6's exit codes. A *userError (bad
// flags/arguments) and a 4xx apiError (the server rejected the request as
// the caller's fault) are both user errors; everything else -- a 5xx
// response or a transport failure -- is a server error.
func exitCodeFor(err error) int {
	var uerr *userError
	if errors.As(err, &uerr) {
		return 1
	}
	var aerr *apiError
	if errors.As(err, &aerr) {
		if aerr.status >= 400 && aerr.status < 500 {
			return 1
		}
	}
	return 2
}

func printRootUsage() {
	fmt.Println(`replicore CLI (replictl)

Usage:
  replictl [global flags] <command> [subcommand] [flags]

Global Flags:
  --addr       replicore REST API base URL (overrides the active context)
  --token      Bearer token (overrides the active context)
  --timeout    HTTP timeout (default 15s)
  --version    Print CLI build information and exit

Commands:
  apply          Apply a manifest (namespace, clusterspec, naction, oaction, platform, discoverysettings)
  cluster-spec   get|list|delete|orchestrate a ClusterSpec
  o-action       get|list|approve|cancel an orchestrator action
  n-action       get|list|approve|reject a node action
  platform       get|list|delete a Platform
  context        configure|use|list local server contexts`)
}
