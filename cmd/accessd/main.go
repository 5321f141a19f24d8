// Command accessd runs the clinic platform's access-control service: role
// and grant administration, security policy management, permission checks
// and session tracking, exposed over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/carevoice/accessd/pkg/api"
	"github.com/carevoice/accessd/pkg/audit"
	"github.com/carevoice/accessd/pkg/config"
	"github.com/carevoice/accessd/pkg/observability"
	"github.com/carevoice/accessd/pkg/policy"
	"github.com/carevoice/accessd/pkg/rbac"
	"github.com/carevoice/accessd/pkg/storage/postgres"
	"github.com/carevoice/accessd/pkg/storage/rediscache"
)

// metricsObserver bridges evaluator measurements onto prometheus.
type metricsObserver struct {
	metrics *observability.Metrics
}

func (o metricsObserver) ObserveDecision(allowed bool, reason rbac.ReasonCode, cached bool, elapsed time.Duration) {
	o.metrics.ObserveDecision(allowed, string(reason), cached, elapsed)
}

func (o metricsObserver) ObserveCacheInvalidation(users int) {
	o.metrics.ObserveCacheInvalidation(users)
}

// logrusSink mirrors audit records into the structured log for external
// retention by the log pipeline.
type logrusSink struct {
	log *logrus.Entry
}

func (s logrusSink) LogAction(action string, metadata map[string]any) {
	s.log.WithFields(logrus.Fields(metadata)).Info(action)
}

func main() {
	seedFlag := flag.String("seed", "", "path to seed file (overrides ACCESSD_SEED_FILE)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *seedFlag != "" {
		cfg.Access.SeedFile = *seedFlag
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(lvl)
	}
	log := logrus.WithField("service", "accessd")
	appLog := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)

	if err := run(cfg, log, appLog); err != nil {
		log.WithError(err).Fatal("service exited")
	}
}

func run(cfg *config.Config, log *logrus.Entry, appLog *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Persistence backend.
	var (
		roleStore   rbac.RoleStore
		grantStore  rbac.GrantStore
		policyStore policy.Store
	)
	switch cfg.Store.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("opening postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("pinging postgres: %w", err)
		}
		store := postgres.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		roleStore, grantStore, policyStore = store, store, store
	case "memory":
		store := rbac.NewMemoryStore()
		roleStore, grantStore = store, store
		policyStore = policy.NewMemoryStore()
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	// Decision cache: shared Redis when configured, per-process LRU otherwise.
	var cache rbac.DecisionCache
	if cfg.Store.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		cache = rediscache.NewCache(client, cfg.Access.CacheTTL, log.WithField("component", "cache"))
	} else {
		cache = rbac.NewLRUCache(cfg.Access.CacheMaxEntries, cfg.Access.CacheTTL)
	}

	catalog := rbac.DefaultCatalog()
	ring := audit.NewRing(cfg.Access.AuditRingSize, logrusSink{log: log.WithField("component", "audit")})
	sessions := rbac.NewSessionTracker(cfg.Access.SessionDuration, rbac.SystemClock())

	evaluator := rbac.NewEvaluator(roleStore, grantStore, catalog,
		rbac.WithPolicyEngine(policy.NewEngine(policyStore)),
		rbac.WithPolicyStore(policyStore),
		rbac.WithCache(cache),
		rbac.WithCacheTTL(cfg.Access.CacheTTL),
		rbac.WithAuditRing(ring),
		rbac.WithSessions(sessions),
		rbac.WithObserver(metricsObserver{metrics: metrics}),
	)

	seedBuiltInRoles(ctx, roleStore, log)

	// Tenant seed file, hot-reloaded on change.
	if cfg.Access.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.Access.SeedFile)
		if err != nil {
			return fmt.Errorf("loading seed file: %w", err)
		}
		applySeed(ctx, seed, catalog, evaluator, log)

		stopWatch, err := config.WatchSeed(cfg.Access.SeedFile,
			func(s *config.Seed) {
				appLog.WithField("path", cfg.Access.SeedFile).Info("seed file reloaded")
				applySeed(context.Background(), s, catalog, evaluator, log)
			},
			func(err error) {
				log.WithError(err).Warn("seed file reload failed")
			},
		)
		if err != nil {
			return fmt.Errorf("watching seed file: %w", err)
		}
		defer stopWatch()
	}

	// Periodic session sweep.
	scheduler := cron.New()
	_, err := scheduler.AddFunc(fmt.Sprintf("@every %s", cfg.Access.SessionSweepEvery), func() {
		if n := evaluator.SweepSessions(); n > 0 {
			appLog.WithField("swept", n).Info("expired idle sessions")
			metrics.ObserveSessionsSwept(n)
		}
		metrics.SetSessionsActive(len(sessions.Active("")))
	})
	if err != nil {
		return fmt.Errorf("scheduling session sweep: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Health and metrics server, on its own port for probes.
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	healthMux.Handle("/metrics", metrics.Handler())
	healthSrv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("health server failed")
		}
	}()

	// Main API server.
	apiSrv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.NewServer(evaluator, log.WithField("component", "api"), metrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.WithField("addr", apiSrv.Addr).Info("accessd listening")
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("api server shutdown")
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("health server shutdown")
	}
	return nil
}

// seedBuiltInRoles ensures the system role set exists. Conflicts with roles
// already present are expected on restart and skipped.
func seedBuiltInRoles(ctx context.Context, store rbac.RoleStore, log *logrus.Entry) {
	for _, role := range rbac.BuiltInRoles() {
		r := role
		if _, err := store.GetRole(ctx, r.ID); err == nil {
			continue
		}
		now := time.Now()
		r.CreatedAt = now
		r.UpdatedAt = now
		if err := store.CreateRole(ctx, &r); err != nil {
			log.WithError(err).WithField("role", r.ID).Warn("seeding built-in role failed")
		}
	}
}

// applySeed registers catalog additions and upserts seeded roles and policies.
func applySeed(ctx context.Context, seed *config.Seed, catalog *rbac.Catalog, evaluator *rbac.Evaluator, log *logrus.Entry) {
	for _, perm := range seed.CatalogPermissions() {
		if _, ok := catalog.Lookup(perm.ID); ok {
			continue
		}
		if err := catalog.Register(perm); err != nil {
			log.WithError(err).WithField("permission", perm.ID).Warn("seeding permission failed")
		}
	}
	for _, role := range seed.RBACRoles() {
		r := role
		upd := rbac.RoleUpdate{
			Name:        &r.Name,
			Description: &r.Description,
			Permissions: r.Permissions,
			Inherits:    r.Inherits,
			Constraints: r.Constraints,
		}
		if _, err := evaluator.UpdateRole(ctx, rbac.ActorSystem, r.ID, upd); err == nil {
			continue
		} else if !errors.Is(err, rbac.ErrNotFound) {
			log.WithError(err).WithField("role", r.ID).Warn("seeding role failed")
			continue
		}
		if _, err := evaluator.CreateRole(ctx, rbac.ActorSystem, &r); err != nil {
			log.WithError(err).WithField("role", r.ID).Warn("seeding role failed")
		}
	}
	for _, pol := range seed.SecurityPolicies() {
		p := pol
		if _, err := evaluator.UpdatePolicy(ctx, rbac.ActorSystem, &p); err == nil {
			continue
		} else if !errors.Is(err, policy.ErrNotFound) {
			log.WithError(err).WithField("policy", p.ID).Warn("seeding policy failed")
			continue
		}
		if _, err := evaluator.CreatePolicy(ctx, rbac.ActorSystem, &p); err != nil {
			log.WithError(err).WithField("policy", p.ID).Warn("seeding policy failed")
		}
	}
}
