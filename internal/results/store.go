// internal/results/store.go
//
// Finalized trial results in SQLite (table trial_results).
// Rooms are stored as JSON arrays of row strings.

package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robalobadob/gridrecon/internal/grid"
)

// Record is one persisted trial.
type Record struct {
	ID                 string      `json:"id" yaml:"id"`
	ParticipantID      string      `json:"participantId" yaml:"participant_id"`
	StimulusID         string      `json:"stimulusId" yaml:"stimulus_id"`
	SceneID            int         `json:"sceneId" yaml:"scene_id"`
	ConditionID        int         `json:"condition" yaml:"condition"`
	IsExample          bool        `json:"isExample" yaml:"is_example"`
	IsFeedback         bool        `json:"isFeedback" yaml:"is_feedback"`
	NObstacles         int         `json:"nObstacles" yaml:"n_obstacles"`
	RT                 float64     `json:"rt" yaml:"rt"`
	FeedbackPercentage *float64    `json:"feedbackPercentage,omitempty" yaml:"feedback_percentage,omitempty"`
	Passed             *bool       `json:"passed,omitempty" yaml:"passed,omitempty"`
	OriginalRoom       grid.Layout `json:"originalRoom" yaml:"original_room"`
	RescaledRoom       grid.Layout `json:"rescaledRoom" yaml:"rescaled_room"`
	CreatedAt          time.Time   `json:"createdAt" yaml:"created_at"`
}

// Trial identifies the trial a Result belongs to.
type Trial struct {
	ID            string
	ParticipantID string
	StimulusID    string
	SceneID       int
	ConditionID   int
}

// NewRecord pairs a widget Result with its trial metadata.
func NewRecord(t Trial, r grid.Result) Record {
	return Record{
		ID:                 t.ID,
		ParticipantID:      t.ParticipantID,
		StimulusID:         t.StimulusID,
		SceneID:            t.SceneID,
		ConditionID:        t.ConditionID,
		IsExample:          r.IsExample,
		IsFeedback:         r.IsFeedback,
		NObstacles:         r.NObstacles,
		RT:                 r.RT,
		FeedbackPercentage: r.FeedbackPercentage,
		Passed:             r.Passed,
		OriginalRoom:       r.OriginalRoom,
		RescaledRoom:       r.RescaledRoom,
	}
}

// Summary aggregates a participant's trials.
type Summary struct {
	ParticipantID  string   `json:"participantId"`
	Trials         int      `json:"trials"`
	FeedbackTrials int      `json:"feedbackTrials"`
	Passed         int      `json:"passed"`
	BestScore      *float64 `json:"bestScore,omitempty"`
	MeanRT         float64  `json:"meanRt"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Insert stores r. A second insert with the same id is ignored.
func (s *Store) Insert(ctx context.Context, r Record) error {
	orig, err := json.Marshal(r.OriginalRoom.Strings())
	if err != nil {
		return err
	}
	resc, err := json.Marshal(r.RescaledRoom.Strings())
	if err != nil {
		return err
	}
	var passed any
	if r.Passed != nil {
		passed = boolInt(*r.Passed)
	}
	var pct any
	if r.FeedbackPercentage != nil {
		pct = *r.FeedbackPercentage
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT OR IGNORE INTO trial_results
            (id, participant_id, stimulus_id, scene_id, condition_id, is_example, is_feedback,
             n_obstacles, rt_ms, feedback_percentage, passed, original_room, rescaled_room)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ParticipantID, r.StimulusID, r.SceneID, r.ConditionID, boolInt(r.IsExample), boolInt(r.IsFeedback),
		r.NObstacles, r.RT, pct, passed, string(orig), string(resc),
	)
	if err != nil {
		return fmt.Errorf("insert trial %s: %w", r.ID, err)
	}
	return nil
}

const selectRecord = `
        SELECT id, participant_id, stimulus_id, scene_id, condition_id, is_example, is_feedback,
               n_obstacles, rt_ms, feedback_percentage, passed, original_room, rescaled_room, created_at
        FROM trial_results`

// ListByParticipant returns a participant's trials, newest first.
func (s *Store) ListByParticipant(ctx context.Context, participantID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectRecord+`
        WHERE participant_id=?
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, participantID, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// List returns all trials in insertion order, for export.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, selectRecord+`
        ORDER BY rowid ASC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// Summary aggregates a participant's trials. Unknown participants get zeros.
func (s *Store) Summary(ctx context.Context, participantID string) (Summary, error) {
	sum := Summary{ParticipantID: participantID}
	var best sql.NullFloat64
	var meanRT sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(1),
               COALESCE(SUM(is_feedback), 0),
               COALESCE(SUM(CASE WHEN passed = 1 THEN 1 ELSE 0 END), 0),
               MAX(feedback_percentage),
               AVG(rt_ms)
        FROM trial_results
        WHERE participant_id=?`, participantID,
	).Scan(&sum.Trials, &sum.FeedbackTrials, &sum.Passed, &best, &meanRT)
	if err != nil {
		return Summary{}, err
	}
	if best.Valid {
		v := best.Float64
		sum.BestScore = &v
	}
	sum.MeanRT = meanRT.Float64
	return sum, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		var (
			r                  Record
			isExample, isFeed  int
			pct                sql.NullFloat64
			passed             sql.NullInt64
			orig, resc, create string
		)
		if err := rows.Scan(&r.ID, &r.ParticipantID, &r.StimulusID, &r.SceneID, &r.ConditionID,
			&isExample, &isFeed, &r.NObstacles, &r.RT, &pct, &passed, &orig, &resc, &create); err != nil {
			return nil, err
		}
		r.IsExample, r.IsFeedback = isExample == 1, isFeed == 1
		if pct.Valid {
			v := pct.Float64
			r.FeedbackPercentage = &v
		}
		if passed.Valid {
			v := passed.Int64 == 1
			r.Passed = &v
		}
		if err := json.Unmarshal([]byte(orig), &r.OriginalRoom); err != nil {
			return nil, fmt.Errorf("trial %s original_room: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(resc), &r.RescaledRoom); err != nil {
			return nil, fmt.Errorf("trial %s rescaled_room: %w", r.ID, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, create)
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
