package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	auth "github.com/mind-engage/mindengage-mgd/internal/auth/middleware"
	"github.com/mind-engage/mindengage-mgd/internal/report"
	"github.com/mind-engage/mindengage-mgd/internal/seed"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbh, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer dbh.Close()
			a.log.Info("schema up to date", zap.String("db", a.cfg.DBDriver))
			return nil
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the reference catalog (periods, rubric, items, coordinators, KPIs)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadSeedFile(file)
			if err != nil {
				return err
			}
			dbh, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer dbh.Close()
			rep, err := seed.Load(cmd.Context(), dbh, f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seed loaded:", rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed YAML file (defaults to the embedded catalog)")
	return cmd
}

func loadSeedFile(path string) (seed.File, error) {
	if path == "" {
		return seed.Default()
	}
	fh, err := os.Open(path)
	if err != nil {
		return seed.File{}, err
	}
	defer fh.Close()
	return seed.Parse(fh)
}

func newSyncCoordinatorsCmd(a *app) *cobra.Command {
	var csvPath string
	cmd := &cobra.Command{
		Use:   "sync-coordinators",
		Short: "Upsert coordinators by full name from a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer fh.Close()
			rows, err := seed.ParseCoordinatorsCSV(fh)
			if err != nil {
				return fmt.Errorf("%s: %w", csvPath, err)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no coordinators to sync")
				return nil
			}
			dbh, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer dbh.Close()
			created, updated, err := seed.SyncCoordinators(cmd.Context(), dbh, rows)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "coordinators synced: source=%d created=%d updated=%d\n",
				len(rows), created, updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV with full_name and optional email, campus, area, is_active columns")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

// newHashPasswordCmd prints a bcrypt hash for ADMIN_PASS_HASH / EVALUATOR_PASS_HASH.
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash of a password (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pw string
			if len(args) == 1 {
				pw = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			if pw == "" {
				return errors.New("empty password")
			}
			h, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func newActaCmd(a *app) *cobra.Command {
	var (
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "acta <evaluation-id>",
		Short: "Render the acta of one evaluation to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid evaluation id %q", args[0])
			}
			if format != "pdf" && format != "html" {
				return fmt.Errorf("unknown format %q (pdf|html)", format)
			}
			dbh, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer dbh.Close()
			svcs, err := a.buildServices(dbh, nil)
			if err != nil {
				return err
			}
			acta, err := svcs.evaluation.Acta(cmd.Context(), id)
			if err != nil {
				return err
			}
			if out == "" {
				out = strings.TrimSuffix(acta.Filename(), ".pdf") + "." + format
			}
			fh, err := os.Create(out)
			if err != nil {
				return err
			}
			if format == "html" {
				err = report.WriteHTML(fh, acta)
			} else {
				err = report.WritePDF(fh, acta)
			}
			if cerr := fh.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to acta_<number>.<format>)")
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or html")
	return cmd
}
