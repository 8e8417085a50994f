// Command replicore runs the control-plane daemon: the REST API, the
// discovery and orchestrator schedulers, and the queue workers that carry
// out their tasks, all sharing one injector.Injector (spec.md §9).
// Grounded on the teacher's cmd-entrypoint convention of building every
// dependency by hand from config.Config and starting each system.Service in
// turn, then waiting on an OS signal for graceful shutdown
// (_examples/r3e-network-service_layer/infrastructure/service/runner.go's
// Run function, trimmed of its marble/chain-specific setup).
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/replicante-io/replicore/internal/agent"
	"github.com/replicante-io/replicore/internal/app/httpapi"
	"github.com/replicante-io/replicore/internal/app/system"
	"github.com/replicante-io/replicore/internal/config"
	"github.com/replicante-io/replicore/internal/coordinator"
	"github.com/replicante-io/replicore/internal/discovery"
	"github.com/replicante-io/replicore/internal/eventstream"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/naction"
	"github.com/replicante-io/replicore/internal/oaction"
	"github.com/replicante-io/replicore/internal/orchestrate"
	"github.com/replicante-io/replicore/internal/orchestrator"
	"github.com/replicante-io/replicore/internal/platformapi"
	"github.com/replicante-io/replicore/internal/sdk"
	"github.com/replicante-io/replicore/internal/store"
	memstore "github.com/replicante-io/replicore/internal/store/memory"
	"github.com/replicante-io/replicore/internal/store/migrate"
	pgstore "github.com/replicante-io/replicore/internal/store/postgres"
	"github.com/replicante-io/replicore/internal/taskqueue"
	"github.com/replicante-io/replicore/internal/worker"
	"github.com/replicante-io/replicore/pkg/logger"
	"github.com/replicante-io/replicore/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "replicore: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "replicore: invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	inj, closeFn, err := build(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("replicore: build dependencies")
	}
	defer closeFn()

	discoveryScheduler := discovery.NewScheduler(inj.Store, inj.Tasks, inj.Coordinator.Election("discovery-scheduler"), log)
	discoveryScheduler.Interval = cfg.Scheduler.DiscoveryTick
	orchestratorScheduler := orchestrator.NewScheduler(inj.Store, inj.Tasks, inj.Coordinator.Election("orchestrator-scheduler"), log)
	orchestratorScheduler.Interval = cfg.Scheduler.OrchestratorTick

	services := []system.Service{
		httpapi.NewService(inj, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), cfg.Auth.Tokens, log, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		discoveryScheduler,
		orchestratorScheduler,
		worker.New(taskqueue.QueueDiscoverPlatform, inj.Tasks, discoveryWorkerHandler(inj), log),
		worker.New(taskqueue.QueueOrchestrateCluster, inj.Tasks, orchestrateWorkerHandler(inj), log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			log.WithError(err).WithField("service", svc.Name()).Fatal("replicore: start service")
		}
	}
	log.Info("replicore: all services started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("replicore: shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(stopCtx); err != nil {
			log.WithError(err).WithField("service", services[i].Name()).Warn("replicore: stop service failed")
		}
	}
	log.Info("replicore: stopped")
}

func discoveryWorkerHandler(inj injector.Injector) worker.Handler {
	return func(ctx context.Context, payload []byte) error {
		req, err := discovery.DecodeRequest(payload)
		if err != nil {
			return err
		}
		return discovery.Run(ctx, inj, req)
	}
}

func orchestrateWorkerHandler(inj injector.Injector) worker.Handler {
	return func(ctx context.Context, payload []byte) error {
		req, err := orchestrate.DecodeRequest(payload)
		if err != nil {
			return err
		}
		return orchestrate.Run(ctx, inj, req)
	}
}

// build wires every process-wide dependency into an injector.Injector.
// "memory" sentinels let the daemon run standalone for local evaluation
// without Postgres/etcd/Redis, matching the teacher's pattern of a
// dependency-free default service (the miner's embedded SQLite fallback)
// generalized to this module's own backends.
func build(cfg *config.Config, log *logger.Logger) (injector.Injector, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	st, err := buildStore(cfg)
	if err != nil {
		return injector.Injector{}, nil, fmt.Errorf("build store: %w", err)
	}
	closers = append(closers, func() { _ = st.Close() })

	events, err := buildEventStream(cfg)
	if err != nil {
		closeAll()
		return injector.Injector{}, nil, fmt.Errorf("build event stream: %w", err)
	}

	coord, err := buildCoordinator(cfg)
	if err != nil {
		closeAll()
		return injector.Injector{}, nil, fmt.Errorf("build coordinator: %w", err)
	}

	tasks, err := buildTaskQueue(cfg)
	if err != nil {
		closeAll()
		return injector.Injector{}, nil, fmt.Errorf("build task queue: %w", err)
	}
	closers = append(closers, func() { _ = tasks.Close() })

	agents := agent.NewRegistry()
	agents.Register("http", agent.HTTPFactory(nil))
	agents.Register("https", agent.HTTPFactory(nil))

	platforms := platformapi.NewRegistry()
	platformapi.RegisterHTTP(platforms, nil)

	core := sdk.New(st, events, time.Now)

	oactions := oaction.NewRegistry()
	oactions.Register(oaction.NewHTTPHandler(&http.Client{Timeout: 30 * time.Second}, metrics.NewRecorder(metrics.Registry)).Entry())

	inj := injector.Injector{
		Store:       st,
		Events:      events,
		Coordinator: coord,
		Tasks:       tasks,
		SDK:         core,
		Agents:      agents,
		Platforms:   platforms,
		NActions:    naction.NewEngine(core),
		OActions:    oaction.NewEngine(oactions, core),
		Log:         log,
	}

	return inj, closeAll, nil
}

func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		return memstore.New(), nil
	}
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := migrate.Up(db); err != nil {
			return nil, err
		}
	}
	return pgstore.New(db), nil
}

func buildEventStream(cfg *config.Config) (eventstream.Stream, error) {
	if cfg.Database.Driver == "memory" {
		return eventstream.NewMemStream(), nil
	}
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	return eventstream.NewPGStream(db, cfg.Database.DSN), nil
}

func buildCoordinator(cfg *config.Config) (coordinator.Coordinator, error) {
	if len(cfg.Coordinator.Endpoints) == 1 && cfg.Coordinator.Endpoints[0] == "memory" {
		return coordinator.NewMemCoordinator(nodeID()), nil
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Coordinator.Endpoints,
		DialTimeout: cfg.Coordinator.DialTimeout,
	})
	if err != nil {
		return nil, err
	}
	return coordinator.NewEtcdCoordinator(client, nodeID(), cfg.Coordinator.SessionTTL)
}

func buildTaskQueue(cfg *config.Config) (taskqueue.Queue, error) {
	if cfg.TaskQueue.RedisAddr == "memory" {
		return taskqueue.NewMemQueue(), nil
	}
	return taskqueue.NewAsynqQueue(asynq.RedisClientOpt{
		Addr:     cfg.TaskQueue.RedisAddr,
		Password: cfg.TaskQueue.RedisPassword,
		DB:       cfg.TaskQueue.RedisDB,
	}), nil
}

func nodeID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
		defer conn.Close()
		return conn.LocalAddr().(*net.UDPAddr).IP.String()
	}
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}
