// main.go
//
// Grid reconstruction server: participant sessions, live trials over HTTP
// and websocket, and a SQLite results store.
//
// Environment (see internal/config): PORT, LOG_LEVEL, DB_PATH, JWT_SECRET,
// CLIENT_ORIGIN, CONDITIONS_FILE, BASE_ROOM_FILE, TRIAL_TTL, MAX_OBSTACLES, ...

package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/gridrecon/assets"
	"github.com/robalobadob/gridrecon/internal/conditions"
	"github.com/robalobadob/gridrecon/internal/config"
	"github.com/robalobadob/gridrecon/internal/httpserver"
	"github.com/robalobadob/gridrecon/internal/results"
	"github.com/robalobadob/gridrecon/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := results.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to open database")
	}
	defer db.Close()
	if err := results.Migrate(db, assets.Migrations()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	cat, err := conditions.Load(cfg.ConditionsFile, cfg.BaseRoomFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load conditions")
	}
	cat = cat.WithPaths(cfg.ImagePath, cfg.StimPath)
	log.Info().Int("conditions", len(cat.Conditions())).Int("stimuli", len(cat.Stimuli())).Msg("catalog loaded")

	srv := httpserver.New(httpserver.Options{
		Config:  cfg,
		Store:   store.NewMemoryStore(),
		Results: results.NewStore(db),
		Catalog: cat,
	})
	log.Info().Str("port", cfg.Port).Msg("starting gridrecon")
	if err := srv.Start(cfg.Addr()); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
