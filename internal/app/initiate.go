package app

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	libOTP "github.com/pquerna/otp"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/scanwatch/credward/internal/credential/outbound/cachedb"
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

func (a *App) initConfig() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "/config/config.yaml"
		if os.Getenv("LOCAL") == "true" {
			path = "./config/config.yaml"
		}
	}

	cfg, err := config.NewViper(path)
	if err != nil {
		slog.Error("failed to init config", "error", err)
		os.Exit(1)
	}

	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", cfg.GetString("app.tz"))

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.max_goroutine"))

	v10, err := validator.NewV10()
	if err != nil {
		slog.Error("failed to init validator", "error", err)
		os.Exit(1)
	}
	a.validator = v10

	a.totp = otp.NewTOTP(a.config.GetString("otp.issuer"), libOTP.DigitsSix)

	rawKey, err := base64.StdEncoding.DecodeString(a.config.GetString("secrets.key"))
	if err != nil {
		slog.Error("failed to decode secrets key", "error", err)
		os.Exit(1)
	}
	if len(rawKey) != 32 {
		slog.Error("secrets key must be 32 bytes (AES-256)")
		os.Exit(1)
	}
	a.sealer = secrets.NewAESGCM(secrets.StaticKeyProvider{KeyBytes: rawKey})
}

func (a *App) initDatabase() {
	pcfg, err := pgxpool.ParseConfig(a.config.GetString("remote.url"))
	if err != nil {
		slog.Error("failed to parse remote DB connection string", "error", err)
		os.Exit(1)
	}

	pcfg.MaxConns = a.config.GetInt32("remote.pool.max_conns")
	pcfg.MinConns = a.config.GetInt32("remote.pool.min_conns")
	pcfg.MaxConnLifetime = a.config.GetSecond("remote.pool.max_conn_lifetime_seconds")
	pcfg.MaxConnIdleTime = a.config.GetSecond("remote.pool.max_conn_idle_seconds")
	pcfg.HealthCheckPeriod = a.config.GetSecond("remote.pool.health_check_period_seconds")

	pool, err := pgxpool.NewWithConfig(a.ctx, pcfg)
	if err != nil {
		slog.Error("failed to create remote DB connection pool", "error", err)
		os.Exit(1)
	}

	// The remote tier being down at boot is survivable; the cache tier
	// serves until it comes back. Ping with a short backoff and move on.
	pingCtx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(pingCtx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(pool.Ping(ctx))
	})
	if err != nil {
		slog.Warn("remote DB unreachable at startup, continuing on cache tier", "error", err)
	}

	a.dbConn = pool
}

func (a *App) initCache() {
	s, err := cachedb.Open(a.ctx, a.config.GetString("cache.path"), a.ins)
	if err != nil {
		slog.Error("failed to open cache DB", "error", err)
		os.Exit(1)
	}

	if err := s.Verify(a.ctx); err != nil {
		slog.Warn("cache integrity check failed, rebuilding", "error", err)
		if err := s.Rebuild(a.ctx); err != nil {
			slog.Error("failed to rebuild cache DB", "error", err)
			os.Exit(1)
		}
	}

	a.cacheDB = s
}

func (a *App) initStorage() {
	driver := strings.TrimSpace(a.config.GetString("storage.driver"))

	var gcsClient *gcs.Client
	if driver == storage.DriverGCS {
		if v := strings.TrimSpace(a.config.GetString("storage.gcs.credentials_file")); v != "" {
			// #nosec G304 -- path is from trusted config file.
			credsJSON, err := os.ReadFile(v)
			if err != nil {
				slog.Error("failed to read gcs credentials file", "error", err)
				os.Exit(1)
			}
			creds, err := google.CredentialsFromJSON(a.ctx, credsJSON, gcs.ScopeFullControl)
			if err != nil {
				slog.Error("failed to parse gcs credentials file", "error", err)
				os.Exit(1)
			}
			client, err := gcs.NewClient(a.ctx, option.WithCredentials(creds))
			if err != nil {
				slog.Error("failed to init gcs client", "error", err)
				os.Exit(1)
			}
			gcsClient = client
		}
	}

	stg, err := storage.NewFromDriver(a.ctx, driver, storage.FactoryOptions{
		MinIO: storage.MinIOOptions{
			Endpoint:  a.config.GetString("storage.minio.endpoint"),
			AccessKey: a.config.GetString("storage.minio.access_key"),
			SecretKey: a.config.GetString("storage.minio.secret_key"),
			Region:    a.config.GetString("storage.minio.region"),
			UseSSL:    a.config.GetBool("storage.minio.use_ssl"),
		},
		S3: storage.S3Options{
			Region:       a.config.GetString("storage.s3.region"),
			Endpoint:     a.config.GetString("storage.s3.endpoint"),
			AccessKey:    a.config.GetString("storage.s3.access_key"),
			SecretKey:    a.config.GetString("storage.s3.secret_key"),
			UsePathStyle: a.config.GetBool("storage.s3.use_path_style"),
		},
		GCS: storage.GCSOptions{
			Client:          gcsClient,
			CredentialsJSON: a.config.GetBinary("storage.gcs.credentials_json"),
		},
	})
	if err != nil {
		slog.Error("failed to init storage", "driver", driver, "error", err)
		os.Exit(1)
	}

	a.storage = stg
}
