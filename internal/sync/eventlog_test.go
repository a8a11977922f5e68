package syncx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-mgd/internal/db"
)

func TestEventRepo_AppendAndListByKey(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer dbh.Close()

	repo := NewEventRepo(dbh, "arica")
	require.NoError(t, repo.Append(ctx, NewEvent(TypeEvaluationCreated, EvaluationKey(1), map[string]int64{"period_id": 3})))
	require.NoError(t, repo.Append(ctx, NewEvent(TypeEvaluationCreated, EvaluationKey(2), nil)))
	require.NoError(t, repo.Append(ctx, NewEvent(TypeEvaluationClosed, EvaluationKey(1), nil)))

	got, err := repo.List(ctx, "evaluation:1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TypeEvaluationCreated, got[0].Type)
	assert.Equal(t, TypeEvaluationClosed, got[1].Type)
	assert.Equal(t, "arica", got[0].SiteID)
	assert.JSONEq(t, `{"period_id":3}`, string(got[0].Data))
	assert.JSONEq(t, `{}`, string(got[1].Data))
	assert.Less(t, got[0].Seq, got[1].Seq)

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
