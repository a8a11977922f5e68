package seed

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/db"
)

// ParseCoordinatorsCSV reads a header row followed by one coordinator per
// line. full_name is required; email, campus, area and is_active are optional.
func ParseCoordinatorsCSV(r io.Reader) ([]catalog.Coordinator, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := idx["full_name"]; !ok {
		return nil, errors.New("missing column: full_name")
	}
	col := func(rec []string, name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var out []catalog.Coordinator
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		spec := CoordinatorSpec{
			FullName: col(rec, "full_name"),
			Email:    col(rec, "email"),
			Campus:   col(rec, "campus"),
			Area:     col(rec, "area"),
		}
		if spec.FullName == "" {
			continue
		}
		if raw := col(rec, "is_active"); raw != "" {
			active, err := parseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			spec.Active = &active
		}
		c := spec.coordinator()
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("line %d: %s", line, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// CoordinatorsFromSpecs applies defaults and validation to decoded entries,
// skipping ones with no name.
func CoordinatorsFromSpecs(specs []CoordinatorSpec) ([]catalog.Coordinator, error) {
	out := make([]catalog.Coordinator, 0, len(specs))
	for i, spec := range specs {
		if strings.TrimSpace(spec.FullName) == "" {
			continue
		}
		c := spec.coordinator()
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("entry %d: %s", i+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// SyncCoordinators upserts rows by full name in one transaction.
func SyncCoordinators(ctx context.Context, dbh *sql.DB, rows []catalog.Coordinator) (created, updated int, err error) {
	err = db.WithTx(ctx, dbh, func(tx *sql.Tx) error {
		created, updated = 0, 0
		store := catalog.NewSQLStore(tx)
		for _, c := range rows {
			isNew, err := store.UpsertCoordinatorByName(ctx, c)
			if err != nil {
				return fmt.Errorf("coordinator %q: %w", c.FullName, err)
			}
			if isNew {
				created++
			} else {
				updated++
			}
		}
		return nil
	})
	return
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y", "si", "sí", "s":
		return true, nil
	case "0", "false", "f", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid is_active %q", s)
}
