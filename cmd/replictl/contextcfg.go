package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// replictlContext is one named server endpoint (spec.md §6 "context
// {configure|use|list}"), analogous to a kubeconfig context. Stored
// locally so an operator can juggle several replicore deployments without
// repeating --addr/--token on every invocation.
type replictlContext struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token,omitempty"`
}

// contextConfig is the on-disk shape of ~/.replictl/config.yaml, following
// the teacher's config.go convention of a single YAML file as the source
// of truth (internal/config/config.go), repurposed here for CLI state
// instead of daemon config.
type contextConfig struct {
	Current  string                      `yaml:"current,omitempty"`
	Contexts map[string]replictlContext  `yaml:"contexts,omitempty"`
}

func contextConfigPath() (string, error) {
	if p := os.Getenv("REPLICTL_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".replictl", "config.yaml"), nil
}

func loadContextConfig() (contextConfig, string, error) {
	path, err := contextConfigPath()
	if err != nil {
		return contextConfig{}, "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return contextConfig{Contexts: map[string]replictlContext{}}, path, nil
	}
	if err != nil {
		return contextConfig{}, path, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg contextConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return contextConfig{}, path, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]replictlContext{}
	}
	return cfg, path, nil
}

func saveContextConfig(path string, cfg contextConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// handleContext implements `replictl context {configure|use|list}`.
func handleContext(args []string) error {
	if len(args) == 0 {
		fmt.Println(`Usage:
  replictl context configure <name> --addr <url> [--token <token>]
  replictl context use <name>
  replictl context list`)
		return nil
	}
	switch args[0] {
	case "configure":
		return handleContextConfigure(args[1:])
	case "use":
		return handleContextUse(args[1:])
	case "list":
		return handleContextList()
	default:
		return &userError{fmt.Errorf("unknown context subcommand %q", args[0])}
	}
}

func handleContextConfigure(args []string) error {
	fs := newFlagSet("context configure")
	var addr, token string
	fs.StringVar(&addr, "addr", "", "Base URL of the replicore REST API (required)")
	fs.StringVar(&token, "token", "", "Bearer token for this context")
	if err := fs.Parse(args); err != nil {
		return &userError{err}
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return &userError{fmt.Errorf("context configure requires exactly one name argument")}
	}
	if addr == "" {
		return &userError{fmt.Errorf("--addr is required")}
	}
	name := rest[0]

	cfg, path, err := loadContextConfig()
	if err != nil {
		return err
	}
	cfg.Contexts[name] = replictlContext{Addr: addr, Token: token}
	if cfg.Current == "" {
		cfg.Current = name
	}
	if err := saveContextConfig(path, cfg); err != nil {
		return err
	}
	fmt.Printf("context %q configured (addr=%s)\n", name, addr)
	return nil
}

func handleContextUse(args []string) error {
	if len(args) != 1 {
		return &userError{fmt.Errorf("context use requires exactly one name argument")}
	}
	name := args[0]
	cfg, path, err := loadContextConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Contexts[name]; !ok {
		return &userError{fmt.Errorf("no such context %q (run %q first)", name, "replictl context configure "+name)}
	}
	cfg.Current = name
	if err := saveContextConfig(path, cfg); err != nil {
		return err
	}
	fmt.Printf("switched to context %q\n", name)
	return nil
}

func handleContextList() error {
	cfg, _, err := loadContextConfig()
	if err != nil {
		return err
	}
	if len(cfg.Contexts) == 0 {
		fmt.Println("(no contexts configured)")
		return nil
	}
	for name, ctxCfg := range cfg.Contexts {
		marker := " "
		if name == cfg.Current {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s\n", marker, name, ctxCfg.Addr)
	}
	return nil
}

// resolveEndpoint picks the base URL/token for API calls: explicit flags
// win, then the current context, then the SERVICE_LAYER-style environment
// defaults the teacher's slctl falls back to.
func resolveEndpoint(addrFlag, tokenFlag string) (string, string, error) {
	if addrFlag != "" {
		return addrFlag, tokenFlag, nil
	}
	cfg, _, err := loadContextConfig()
	if err == nil && cfg.Current != "" {
		if ctxCfg, ok := cfg.Contexts[cfg.Current]; ok {
			token := tokenFlag
			if token == "" {
				token = ctxCfg.Token
			}
			return ctxCfg.Addr, token, nil
		}
	}
	addr := os.Getenv("REPLICORE_ADDR")
	if addr == "" {
		addr = "http://localhost:8080"
	}
	token := tokenFlag
	if token == "" {
		token = os.Getenv("REPLICORE_TOKEN")
	}
	return addr, token, nil
}
