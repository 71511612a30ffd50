package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scanwatch/credward/internal/credential/outbound/cachedb"
	"github.com/scanwatch/credward/internal/credential/usecase"
	"github.com/scanwatch/credward/internal/pkg/clock"
	"github.com/scanwatch/credward/internal/pkg/config"
	"github.com/scanwatch/credward/internal/pkg/goroutine"
	"github.com/scanwatch/credward/internal/pkg/instrument"
	"github.com/scanwatch/credward/internal/pkg/otp"
	"github.com/scanwatch/credward/internal/pkg/secrets"
	"github.com/scanwatch/credward/internal/pkg/storage"
	"github.com/scanwatch/credward/internal/pkg/uid"
	"github.com/scanwatch/credward/internal/pkg/validator"
)

// App wires dependencies and manages service lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	// configuration
	config config.Config
	ins    instrument.Instrumentation

	// libraries
	goroutine *goroutine.Manager
	validator validator.Validator
	clock     clock.Clocker
	uuid      uid.StringID
	totp      otp.Engine
	sealer    secrets.Encryptor

	// resources
	dbConn  *pgxpool.Pool
	cacheDB *cachedb.Store
	storage storage.Storage

	// modules
	credential *usecase.Usecase

	//
	closers []struct {
		name string
		fn   func(context.Context) error
	}
}

// New initializes the application with default wiring and returns an App
// instance.
func New() *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		ctx:    ctx,
		cancel: cancel,
	}

	app.initConfig()
	app.initInstrument()
	app.initLibraries()
	app.initDatabase()
	app.initCache()
	app.initStorage()
	app.initModules()
	app.initClosers()

	return app
}

// Credential exposes the wired credential operations to inbound adapters.
func (a *App) Credential() *usecase.Usecase {
	return a.credential
}
