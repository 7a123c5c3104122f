package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/spokestack/accessctl/internal/adapter/outbound/auditfile"
	"github.com/spokestack/accessctl/internal/adapter/outbound/auditstream"
	"github.com/spokestack/accessctl/internal/adapter/outbound/expr"
	"github.com/spokestack/accessctl/internal/adapter/outbound/memory"
	"github.com/spokestack/accessctl/internal/adapter/outbound/sqlite"
	"github.com/spokestack/accessctl/internal/config"
	"github.com/spokestack/accessctl/internal/domain/access"
	"github.com/spokestack/accessctl/internal/domain/audit"
	"github.com/spokestack/accessctl/internal/service"
)

// userWriter is the identity sync entry point both storage backends
// implement.
type userWriter interface {
	PutUser(ctx context.Context, u *access.User) error
}

// app wires configuration, storage, audit, and the three services for a
// single CLI invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	policies    access.PolicyStore
	assignments access.AssignmentStore
	users       access.UserStore
	userWriter  userWriter
	recorder    audit.Recorder
	auditReader audit.Reader

	admin    *service.PolicyAdminService
	registry *service.AssignmentService
	resolver *service.DecisionService

	closers []func() error
}

// newApp assembles the engine from configuration. Callers must Close.
func newApp() (*app, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	a := &app{cfg: cfg, logger: logger}

	if err := a.wireStores(); err != nil {
		return nil, err
	}
	if err := a.wireAudit(); err != nil {
		a.Close()
		return nil, err
	}

	evaluator, err := expr.NewEvaluator()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("expression evaluator: %w", err)
	}

	var metrics *service.Metrics
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = service.NewMetrics(reg)
		a.serveMetrics(reg)
	}

	adminOpts := []service.PolicyAdminOption{}
	registryOpts := []service.AssignmentServiceOption{
		service.WithMinReasonLength(cfg.Assignments.MinReasonLength),
	}
	resolverOpts := []service.DecisionServiceOption{
		service.WithExpressionEvaluator(evaluator),
	}
	if cfg.DecisionCache.Enabled {
		resolverOpts = append(resolverOpts,
			service.WithDecisionCache(cfg.DecisionCache.MaxSize, cfg.DecisionCache.TTL))
	}
	if metrics != nil {
		adminOpts = append(adminOpts, service.WithPolicyAdminMetrics(metrics))
		registryOpts = append(registryOpts, service.WithAssignmentMetrics(metrics))
		resolverOpts = append(resolverOpts, service.WithDecisionMetrics(metrics))
	}

	a.admin = service.NewPolicyAdminService(a.policies, a.assignments, a.recorder, evaluator, logger, adminOpts...)
	a.registry = service.NewAssignmentService(a.policies, a.assignments, a.users, a.recorder, &logNotifier{logger: logger}, logger, registryOpts...)
	a.resolver = service.NewDecisionService(a.users, a.registry, logger, resolverOpts...)
	return a, nil
}

func (a *app) wireStores() error {
	switch a.cfg.Database.Driver {
	case "memory":
		policies := memory.NewPolicyStore()
		assignments := memory.NewAssignmentStore()
		users := memory.NewUserStore()
		a.policies = policies
		a.assignments = assignments
		a.users = users
		a.userWriter = users
	default:
		store, err := sqlite.Open(a.cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database %s: %w", a.cfg.Database.Path, err)
		}
		a.policies = store
		a.assignments = store
		a.users = store
		a.userWriter = store
		a.closers = append(a.closers, store.Close)
		if a.cfg.Audit.Output == "database" {
			a.recorder = store
			a.auditReader = store
		}
	}
	return nil
}

func (a *app) wireAudit() error {
	if a.recorder != nil {
		return nil
	}
	switch {
	case a.cfg.Audit.Output == "stdout":
		a.recorder = auditstream.New(os.Stdout)
	case strings.HasPrefix(a.cfg.Audit.Output, "file://"):
		rec, err := auditfile.New(auditfile.Config{
			Dir:           strings.TrimPrefix(a.cfg.Audit.Output, "file://"),
			RetentionDays: a.cfg.Audit.RetentionDays,
			MaxFileSizeMB: a.cfg.Audit.MaxFileSizeMB,
			RecentSize:    a.cfg.Audit.RecentSize,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("open audit trail: %w", err)
		}
		a.recorder = rec
		a.auditReader = rec
		a.closers = append(a.closers, rec.Close)
	default:
		return fmt.Errorf("audit output %q requires the sqlite driver", a.cfg.Audit.Output)
	}
	return nil
}

// serveMetrics exposes the Prometheus endpoint in the background for
// the lifetime of the invocation.
func (a *app) serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics endpoint failed", "addr", a.cfg.Metrics.Addr, "error", err)
		}
	}()
	a.closers = append(a.closers, srv.Close)
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// actor resolves the acting user from the identity mirror. Management
// commands authorize against the stored level, never a claimed one.
func (a *app) actor(ctx context.Context, orgID, actorID string) (access.Actor, error) {
	if actorID == "" {
		return access.Actor{}, fmt.Errorf("--actor is required")
	}
	u, err := a.users.GetUser(ctx, orgID, actorID)
	if err != nil {
		return access.Actor{}, fmt.Errorf("resolve actor %s: %w", actorID, err)
	}
	return access.Actor{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		Name:           u.Name,
		Level:          u.Level,
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// runWithActor assembles the app, resolves the acting user from the
// identity mirror, runs fn, and tears everything down.
func runWithActor(cmd *cobra.Command, orgID, actorID string, fn func(a *app, actor access.Actor) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	actor, err := a.actor(cmd.Context(), orgID, actorID)
	if err != nil {
		return err
	}
	return fn(a, actor)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// logNotifier logs the notification fan-out. Real delivery (email,
// chat) belongs to an external collaborator behind the same interface.
type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) Notify(ctx context.Context, orgID string, userIDs []string, message string) error {
	n.logger.Info("notification fan-out", "organization", orgID, "recipients", userIDs, "message", message)
	return nil
}
