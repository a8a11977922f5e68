package main

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/config"
	"github.com/mind-engage/mindengage-mgd/internal/db"
	"github.com/mind-engage/mindengage-mgd/internal/evaluation"
	"github.com/mind-engage/mindengage-mgd/internal/logging"
	"github.com/mind-engage/mindengage-mgd/internal/observability"
	"github.com/mind-engage/mindengage-mgd/internal/report"
	"github.com/mind-engage/mindengage-mgd/internal/storage"
	syncx "github.com/mind-engage/mindengage-mgd/internal/sync"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	envFiles []string
	cfg      config.Config
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "mgd",
		Short:         "Coordinator performance evaluations (MGD)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.envFiles...)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log, err = logging.New(cfg.LogLevel, cfg.LogFormat)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env", []string{".env"}, "dotenv files to load before reading the environment")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newSeedCmd(a),
		newSyncCoordinatorsCmd(a),
		newHashPasswordCmd(),
		newActaCmd(a),
	)
	return root
}

func (a *app) openDB(ctx context.Context) (*sql.DB, error) {
	drv, err := db.ParseDriver(a.cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, drv, a.cfg.DBDSN)
}

func (a *app) reportOptions() report.Options {
	c := a.cfg.Acta
	return report.Options{
		Site:         c.Site,
		Role:         c.Role,
		Institution:  c.Institution,
		Title:        c.Title,
		DirectorName: c.DirectorName,
		DirectorRole: c.DirectorRole,
		DirectorUnit: c.DirectorUnit,
		SubjectRole:  c.SubjectRole,
	}
}

// services holds the stores and services built on one database handle.
type services struct {
	catalog     *catalog.SQLStore
	evaluations evaluation.Store
	events      *syncx.EventRepo
	blobs       *storage.FSStore
	evaluation  *evaluation.Service
}

func (a *app) buildServices(dbh *sql.DB, metrics *observability.Metrics) (*services, error) {
	blobs, err := storage.NewFSStore(a.cfg.BlobBasePath)
	if err != nil {
		return nil, err
	}
	s := &services{
		catalog:     catalog.NewSQLStore(dbh),
		evaluations: evaluation.NewSQLStore(dbh),
		events:      syncx.NewEventRepo(dbh, a.cfg.Acta.Site),
		blobs:       blobs,
	}
	s.evaluation = &evaluation.Service{
		Catalog:      s.catalog,
		Store:        s.evaluations,
		Events:       s.events,
		Blobs:        blobs,
		Metrics:      metrics,
		Options:      a.reportOptions(),
		Log:          a.log,
		ArchiveActas: a.cfg.ArchiveActas,
	}
	return s, nil
}
