package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-mgd/internal/admin"
	api "github.com/mind-engage/mindengage-mgd/internal/api/http"
	auth "github.com/mind-engage/mindengage-mgd/internal/auth/middleware"
	"github.com/mind-engage/mindengage-mgd/internal/kpi"
	"github.com/mind-engage/mindengage-mgd/internal/logging"
	"github.com/mind-engage/mindengage-mgd/internal/observability"
	"github.com/mind-engage/mindengage-mgd/internal/rbac"
	"github.com/mind-engage/mindengage-mgd/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := a.openDB(openCtx)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	h, err := a.newRouter(dbh, reg, metrics)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.log.Info("listening",
		zap.String("addr", a.cfg.HTTPAddr),
		zap.String("mode", string(a.cfg.Mode)),
		zap.String("db", a.cfg.DBDriver))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter wires every HTTP surface on one database handle.
func (a *app) newRouter(dbh *sql.DB, reg *prometheus.Registry, metrics *observability.Metrics) (http.Handler, error) {
	svcs, err := a.buildServices(dbh, metrics)
	if err != nil {
		return nil, err
	}
	pages, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}
	authSvc := auth.NewAuthService(a.cfg.AuthHMACSecret, a.accounts()...)
	kpiSvc := &kpi.Service{
		Store:        kpi.NewSQLStore(dbh),
		Coordinators: svcs.catalog,
		Blobs:        svcs.blobs,
		Events:       svcs.events,
		Log:          a.log.Named("kpi"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(logging.Middleware(a.log))
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if a.cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc))
	}

	api.MountViews(r, &api.Views{
		Svc:     svcs.evaluation,
		Pages:   pages,
		Metrics: metrics,
		Log:     a.log.Named("views"),
	})

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Group(func(ar chi.Router) {
			ar.Use(rbac.RequireReadWrite("catalog:view", "catalog:edit"))
			ar.Mount("/admin", admin.Routes(admin.Deps{
				Catalog:     svcs.catalog,
				Evaluations: svcs.evaluations,
				Events:      svcs.events,
				Blobs:       svcs.blobs,
			}))
		})
		pr.With(rbac.Require("catalog:edit")).
			Post("/api/coordinators/import", api.ImportCoordinatorsHandler(dbh))
		pr.Group(func(kr chi.Router) {
			kr.Use(rbac.RequireReadWrite("kpi:view", "kpi:edit"))
			kr.Mount("/api/kpi", kpi.Routes(kpiSvc))
		})
	})

	r.Handle("/metrics", observability.Handler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return r, nil
}

// accounts lists the configured local logins. An account with no hash cannot log in.
func (a *app) accounts() []auth.Account {
	var out []auth.Account
	if a.cfg.AdminUser != "" && a.cfg.AdminPassHash != "" {
		out = append(out, auth.Account{Username: a.cfg.AdminUser, PassHash: a.cfg.AdminPassHash, Role: "admin"})
	}
	if a.cfg.EvaluatorUser != "" && a.cfg.EvaluatorPassHash != "" {
		out = append(out, auth.Account{Username: a.cfg.EvaluatorUser, PassHash: a.cfg.EvaluatorPassHash, Role: "evaluator"})
	}
	return out
}
