package app

import (
	"github.com/go-chi/oauth"

	"github.com/dtlabs/stepform/config"
	"github.com/dtlabs/stepform/store"
)

type App struct {
	*store.Store
	*oauth.BearerServer
	config.Config
}
