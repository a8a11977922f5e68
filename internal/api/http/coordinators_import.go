package http

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/seed"
)

const maxImportBytes = 5 << 20

// ImportCoordinatorsHandler bulk upserts coordinators by full name. It accepts
// a multipart file= (CSV or JSON) or a raw body of either kind.
func ImportCoordinatorsHandler(dbh *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
		var src io.Reader = r.Body
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			src = f
		}

		rows, err := decodeCoordinators(src)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(rows) == 0 {
			writeJSON(w, map[string]int{"created": 0, "updated": 0})
			return
		}
		created, updated, err := seed.SyncCoordinators(r.Context(), dbh, rows)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]int{"created": created, "updated": updated})
	}
}

// decodeCoordinators sniffs the first non-space byte: '[' means a JSON array,
// anything else is CSV with a header row.
func decodeCoordinators(r io.Reader) ([]catalog.Coordinator, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] != '[' {
			return seed.ParseCoordinatorsCSV(br)
		}
		break
	}

	var specs []seed.CoordinatorSpec
	if err := json.NewDecoder(br).Decode(&specs); err != nil {
		return nil, errors.New("expected a JSON array of coordinators or a CSV file")
	}
	return seed.CoordinatorsFromSpecs(specs)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
