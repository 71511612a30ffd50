package app

import (
	"log/slog"
	"os"

	"github.com/scanwatch/credward/internal/credential"
)

func (a *App) initModules() {
	uc, err := credential.New(credential.Dependency{
		DBConn:     a.dbConn,
		CacheDB:    a.cacheDB,
		Storage:    a.storage,
		Goroutine:  a.goroutine,
		Config:     a.config,
		Instrument: a.ins,
		UUID:       a.uuid,
		Sealer:     a.sealer,
		Totp:       a.totp,
		Clock:      a.clock,
		Validator:  a.validator,
	})
	if err != nil {
		slog.Error("failed to init module credential", "error", err)
		os.Exit(1)
	}

	a.credential = uc
}
