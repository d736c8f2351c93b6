// cmd/gridtui/main.go
//
// Runs one reconstruction trial in the terminal and prints the Result as
// YAML. With -participant the result is also stored in DB_PATH, the same
// database the HTTP server writes to.
//
//	gridtui -stimulus 30_2 -feedback
//	gridtui -condition 1 -scale 4 -participant P01

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/robalobadob/gridrecon/assets"
	"github.com/robalobadob/gridrecon/internal/conditions"
	"github.com/robalobadob/gridrecon/internal/config"
	"github.com/robalobadob/gridrecon/internal/grid"
	"github.com/robalobadob/gridrecon/internal/results"
	"github.com/robalobadob/gridrecon/internal/tui"
)

func main() {
	var (
		stimulusID  = flag.String("stimulus", "", "stimulus id, e.g. 30_2")
		conditionID = flag.Int("condition", -1, "room condition when no stimulus is given")
		feedback    = flag.Bool("feedback", false, "score against the stimulus ground truth")
		passing     = flag.Float64("pass", 0, "passing percentage for feedback trials")
		scale       = flag.Int("scale", 1, "room scale factor for the rescaled layout")
		participant = flag.String("participant", "", "store the result for this participant")
		logFile     = flag.String("log", "", "write debug logs to this file")
	)
	flag.Parse()

	_ = godotenv.Load()
	setupLogging(*logFile)

	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if *scale < 1 || *scale > cfg.MaxScaleFactor {
		fail(fmt.Errorf("-scale must be between 1 and %d", cfg.MaxScaleFactor))
	}
	cat, err := conditions.Load(cfg.ConditionsFile, cfg.BaseRoomFile)
	if err != nil {
		fail(err)
	}
	cat = cat.WithPaths(cfg.ImagePath, cfg.StimPath)

	trial := results.Trial{ID: uuid.NewString(), ParticipantID: *participant}
	gc := grid.Config{
		CellSize:          cfg.CellSize,
		MaxObstacles:      cfg.MaxObstacles,
		RoomScaleFactor:   *scale,
		IsFeedback:        *feedback,
		PassingPercentage: *passing,
		ImagePath:         cat.ImagePath(),
	}
	title := ""
	switch {
	case *stimulusID != "":
		stim, err := cat.Stimulus(*stimulusID)
		if err != nil {
			fail(err)
		}
		trial.StimulusID, trial.SceneID, trial.ConditionID = stim.ID, stim.SceneID, stim.Condition
		gc.IsExample = stim.Example
		title = fmt.Sprintf("scene %d, condition %d", stim.SceneID, stim.Condition)
	case *conditionID >= 0:
		trial.ConditionID = *conditionID
		title = fmt.Sprintf("condition %d", *conditionID)
	default:
		fail(fmt.Errorf("one of -stimulus or -condition is required"))
	}
	if gc.Room, err = cat.Room(trial.ConditionID); err != nil {
		fail(err)
	}
	gc.BaseImage = cat.BaseImage(trial.ConditionID)
	if *feedback {
		if trial.StimulusID == "" {
			fail(grid.ErrMissingGroundTruth)
		}
		if gc.GroundTruth, err = cat.GroundTruth(trial.StimulusID); err != nil {
			fail(err)
		}
	}

	res, err := tui.Run(gc, title)
	if err != nil {
		fail(err)
	}
	if res == nil {
		fmt.Fprintln(os.Stderr, "trial abandoned")
		os.Exit(1)
	}

	if *participant != "" {
		if err := saveResult(cfg.DBPath, results.NewRecord(trial, *res)); err != nil {
			fail(err)
		}
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		fail(err)
	}
	_ = enc.Close()
}

// setupLogging keeps the alternate screen clean: logs go to a file or nowhere.
func setupLogging(path string) {
	if path == "" {
		zerolog.SetGlobalLevel(zerolog.Disabled)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fail(err)
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
}

func saveResult(dsn string, rec results.Record) error {
	db, err := results.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := results.Migrate(db, assets.Migrations()); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return results.NewStore(db).Insert(ctx, rec)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
