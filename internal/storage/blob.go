package storage

import (
	"errors"
	"io"
	"strconv"
)

var ErrNotFound = errors.New("storage: blob not found")

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
}

// ActaKey is where the archived PDF of a closed evaluation lives.
func ActaKey(docID string) string { return "actas/" + docID + ".pdf" }

// EvidenceKey namespaces KPI evidence uploads per result.
func EvidenceKey(resultID int64, name string) string {
	return "evidence/" + strconv.FormatInt(resultID, 10) + "/" + name
}
