package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-mgd/internal/catalog"
	"github.com/mind-engage/mindengage-mgd/internal/db"
)

func TestDecodeCoordinators(t *testing.T) {
	rows, err := decodeCoordinators(strings.NewReader("  \n[{\"full_name\":\"Ana Pérez\",\"is_active\":false},{\"full_name\":\"\"}]"))
	require.NoError(t, err)
	assert.Equal(t, []catalog.Coordinator{{FullName: "Ana Pérez", Campus: "Arica", Active: false}}, rows)

	rows, err = decodeCoordinators(strings.NewReader("full_name,campus\nLuis Soto,Iquique\n"))
	require.NoError(t, err)
	assert.Equal(t, []catalog.Coordinator{{FullName: "Luis Soto", Campus: "Iquique", Active: true}}, rows)

	rows, err = decodeCoordinators(strings.NewReader(" \n"))
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = decodeCoordinators(strings.NewReader("[{\"full_name\":"))
	assert.Error(t, err)
}

func TestImportCoordinatorsHandler(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	h := ImportCoordinatorsHandler(dbh)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "coords.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("full_name,area\nAna Pérez,Salud\nLuis Soto,TI\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]int{"created": 2, "updated": 0}, got)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[{"full_name":"Ana Pérez","is_active":false}]`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]int{"created": 0, "updated": 1}, got)

	active, err := catalog.NewSQLStore(dbh).ListActiveCoordinators(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Luis Soto", active[0].FullName)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name\nX\n"))
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
