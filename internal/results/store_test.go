package results

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/gridrecon/assets"
	"github.com/robalobadob/gridrecon/internal/grid"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db, assets.Migrations()))
	return db
}

func ptr[T any](v T) *T { return &v }

func sampleResult(obstacles int, pct *float64, passed *bool) grid.Result {
	room := grid.MustParse("wwww", "w00w", "w00w", "beeb")
	pts := []grid.Point{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 1, Y: 2}, {X: 2, Y: 2}}
	for _, p := range pts[:obstacles] {
		room.Set(p, grid.Obstacle)
	}
	return grid.Result{
		OriginalRoom:       room,
		RescaledRoom:       room.Expand(2),
		NObstacles:         obstacles,
		RT:                 1234.5,
		FeedbackPercentage: pct,
		Passed:             passed,
		IsFeedback:         pct != nil,
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	require.NoError(t, Migrate(db, assets.Migrations()))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM _migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMigrateSelfManagedScript(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	extra := fstest.MapFS{
		"002_extra.sql": {Data: []byte("PRAGMA foreign_keys=OFF;\nCREATE TABLE extra (id INTEGER);\nPRAGMA foreign_keys=ON;\n")},
	}
	require.NoError(t, Migrate(db, extra))
	_, err := db.Exec(`INSERT INTO extra (id) VALUES (1)`)
	assert.NoError(t, err)
}

func TestMigrateFailureLeavesNoRecord(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	broken := fstest.MapFS{
		"003_broken.sql": {Data: []byte("CREATE TABLE half (id INTEGER);\nINSERT INTO missing VALUES (1);\n")},
	}
	err := Migrate(db, broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "003_broken.sql")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM _migrations WHERE name = '003_broken.sql'`).Scan(&n))
	assert.Zero(t, n)
	_, err = db.Exec(`INSERT INTO half (id) VALUES (1)`)
	assert.Error(t, err, "partial script is rolled back")
}

func TestOpenEnforcesForeignKeys(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	var on int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)
}

func TestInsertAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewStore(openTestDB(t))

	plain := NewRecord(Trial{ID: "a", ParticipantID: "p1", StimulusID: "12_0", SceneID: 12}, sampleResult(4, nil, nil))
	fb := NewRecord(Trial{ID: "b", ParticipantID: "p1", StimulusID: "30_2", SceneID: 30, ConditionID: 2},
		sampleResult(3, ptr(62.5), ptr(true)))
	other := NewRecord(Trial{ID: "c", ParticipantID: "p2"}, sampleResult(2, ptr(-10.0), ptr(false)))

	for _, r := range []Record{plain, fb, other} {
		require.NoError(t, st.Insert(ctx, r))
	}
	require.NoError(t, st.Insert(ctx, plain), "duplicate ids are ignored")

	mine, err := st.ListByParticipant(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "b", mine[0].ID, "newest first")

	got := mine[1]
	assert.Equal(t, plain.OriginalRoom, got.OriginalRoom)
	assert.Equal(t, plain.RescaledRoom, got.RescaledRoom)
	assert.Equal(t, 4, got.NObstacles)
	assert.Equal(t, 1234.5, got.RT)
	assert.Nil(t, got.FeedbackPercentage)
	assert.Nil(t, got.Passed)
	assert.False(t, got.CreatedAt.IsZero())

	require.NotNil(t, mine[0].FeedbackPercentage)
	assert.Equal(t, 62.5, *mine[0].FeedbackPercentage)
	assert.True(t, *mine[0].Passed)
	assert.Equal(t, 2, mine[0].ConditionID)

	all, err := st.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})

	none, err := st.ListByParticipant(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewStore(openTestDB(t))

	require.NoError(t, st.Insert(ctx, NewRecord(Trial{ID: "1", ParticipantID: "p"}, sampleResult(4, nil, nil))))
	require.NoError(t, st.Insert(ctx, NewRecord(Trial{ID: "2", ParticipantID: "p"}, sampleResult(4, ptr(40.0), ptr(false)))))
	require.NoError(t, st.Insert(ctx, NewRecord(Trial{ID: "3", ParticipantID: "p"}, sampleResult(4, ptr(81.25), ptr(true)))))

	sum, err := st.Summary(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Trials)
	assert.Equal(t, 2, sum.FeedbackTrials)
	assert.Equal(t, 1, sum.Passed)
	require.NotNil(t, sum.BestScore)
	assert.Equal(t, 81.25, *sum.BestScore)
	assert.Equal(t, 1234.5, sum.MeanRT)

	empty, err := st.Summary(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Trials)
	assert.Nil(t, empty.BestScore)
}
