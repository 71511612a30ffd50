// Package credential issues and validates one-time passcodes across a
// remote database of record, a local file-backed cache, and an emergency
// recovery channel on object storage.
package credential

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scanwatch/credward/internal/credential/outbound/cachedb"
	"github.com/scanwatch/credward/internal/credential/outbound/recovery"
	"github.com/scanwatch/credward/internal/credential/outbound/remotedb"
	"github.com/scanwatch/credward/internal/credential/store"
	"github.com/scanwatch/credward/internal/credential/usecase"
	"github.com/scanwatch/credward/internal/pkg/clock"
	"github.com/scanwatch/credward/internal/pkg/config"
	"github.com/scanwatch/credward/internal/pkg/goroutine"
	"github.com/scanwatch/credward/internal/pkg/instrument"
	"github.com/scanwatch/credward/internal/pkg/keylock"
	"github.com/scanwatch/credward/internal/pkg/otp"
	"github.com/scanwatch/credward/internal/pkg/secrets"
	"github.com/scanwatch/credward/internal/pkg/storage"
	"github.com/scanwatch/credward/internal/pkg/uid"
	"github.com/scanwatch/credward/internal/pkg/validator"
)

type Dependency struct {
	DBConn     *pgxpool.Pool              `validate:"required"`
	CacheDB    *cachedb.Store             `validate:"required"`
	Storage    storage.Storage            `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Sealer     secrets.Encryptor          `validate:"required"`
	Totp       otp.Engine                 `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	// Deliverer carries emergency secrets out of band; nil falls back to a
	// no-op.
	Deliverer recovery.Deliverer
}

func New(dep Dependency) (*usecase.Usecase, error) {
	if err := dep.Validator.Validate(dep); err != nil {
		return nil, err
	}

	remote := remotedb.New(dep.DBConn, dep.Instrument)

	chain := store.New(remote, dep.CacheDB,
		dep.Config.GetSecond("remote.call_timeout_seconds"))

	channel := recovery.NewChannel(recovery.Config{
		Store:     dep.Storage,
		Bucket:    dep.Config.GetString("recovery.bucket"),
		Engine:    dep.Totp,
		IDs:       dep.UUID,
		Tasks:     dep.Goroutine,
		Deliverer: dep.Deliverer,
		Clock:     dep.Clock,
		Ins:       dep.Instrument,
	})

	return usecase.New(usecase.Dependency{
		Store:      chain,
		Remote:     remote,
		Cache:      dep.CacheDB,
		Emergency:  channel,
		Sealer:     dep.Sealer,
		Totp:       dep.Totp,
		Locks:      keylock.New(dep.Config.GetInt("app.lock_shards")),
		Validator:  dep.Validator,
		Config:     dep.Config,
		Clock:      dep.Clock,
		Instrument: dep.Instrument,
	}), nil
}
