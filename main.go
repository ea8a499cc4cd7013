package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/dtlabs/stepform/app"
	"github.com/dtlabs/stepform/config"
	"github.com/dtlabs/stepform/database"
	"github.com/dtlabs/stepform/httpx"
	"github.com/dtlabs/stepform/log"
	"github.com/dtlabs/stepform/routes"
	"github.com/dtlabs/stepform/store"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	app := app.App{
		Store:        store.New(db),
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
	}

	handler := routes.Wire(app)

	err = runServer(cfg, handler)
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
