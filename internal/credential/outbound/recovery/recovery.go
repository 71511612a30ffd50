// Package recovery is the emergency channel of last resort. When both
// database tiers are down it mints a fresh TOTP secret, seals a credential
// document with a key derived from that secret, and publishes the document
// to object storage keyed by user. The plaintext secret travels only through
// the out-of-band deliverer; neither database tier ever stores it.
package recovery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scanwatch/credward/internal/pkg/clock"
	"github.com/scanwatch/credward/internal/pkg/goerror"
	"github.com/scanwatch/credward/internal/pkg/goroutine"
	"github.com/scanwatch/credward/internal/pkg/instrument"
	"github.com/scanwatch/credward/internal/pkg/otp"
	"github.com/scanwatch/credward/internal/pkg/secrets"
	"github.com/scanwatch/credward/internal/pkg/storage"
	"github.com/scanwatch/credward/internal/pkg/uid"
)

const (
	handlePrefix   = "v1"
	publishTimeout = 15 * time.Second
)

// Deliverer hands the emergency secret to the user over an out-of-band
// transport. Implementations live outside this module.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, secret string) error
}

// NopDeliverer discards the secret. Placeholder wiring for deployments that
// read secrets off the delivery queue elsewhere.
type NopDeliverer struct{}

func (NopDeliverer) Deliver(context.Context, int64, string) error { return nil }

// document is the sealed payload published to object storage.
type document struct {
	UserID   int64     `json:"user_id"`
	Handle   string    `json:"handle"`
	Secret   string    `json:"secret"`
	IssuedAt time.Time `json:"issued_at"`
}

// Channel publishes and resolves emergency credential documents.
type Channel struct {
	store   storage.Storage
	bucket  string
	engine  otp.Engine
	ids     uid.StringID
	tasks   *goroutine.Manager
	deliver Deliverer
	clock   clock.Clocker
	ins     instrument.Instrumentation
}

// Config carries the dependencies for NewChannel.
type Config struct {
	Store     storage.Storage
	Bucket    string
	Engine    otp.Engine
	IDs       uid.StringID
	Tasks     *goroutine.Manager
	Deliverer Deliverer
	Clock     clock.Clocker
	Ins       instrument.Instrumentation
}

// NewChannel constructs the emergency channel.
func NewChannel(cfg Config) *Channel {
	if cfg.Deliverer == nil {
		cfg.Deliverer = NopDeliverer{}
	}
	return &Channel{
		store:   cfg.Store,
		bucket:  cfg.Bucket,
		engine:  cfg.Engine,
		ids:     cfg.IDs,
		tasks:   cfg.Tasks,
		deliver: cfg.Deliverer,
		clock:   cfg.Clock,
		ins:     cfg.Ins,
	}
}

// Request mints a fresh secret for the user, schedules publication of the
// sealed document, and returns the opaque handle without waiting for the
// upload. The handle is valid once the background publish lands.
func (c *Channel) Request(ctx context.Context, userID int64, accountName string) (_ string, err error) {
	ctx, span := c.startSpan(ctx, "Request")
	defer func() { c.endSpan(span, err) }()

	secret, err := c.engine.GenerateSecret(accountName)
	if err != nil {
		return "", goerror.Unreachable(err)
	}

	handle := encodeHandle(userID, c.ids.Generate())
	doc := document{
		UserID:   userID,
		Handle:   handle,
		Secret:   secret,
		IssuedAt: c.clock.Now(),
	}

	sealed, err := c.seal(doc, secret)
	if err != nil {
		return "", err
	}

	c.tasks.Go(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := c.publish(ctx, userID, handle, sealed); err != nil {
			slog.ErrorContext(ctx, "emergency document publish failed",
				"user_id", userID, "error", err)
			return err
		}
		if err := c.deliver.Deliver(ctx, userID, secret); err != nil {
			slog.ErrorContext(ctx, "emergency secret delivery failed",
				"user_id", userID, "error", err)
			return err
		}
		return nil
	})

	return handle, nil
}

// Resolve reports whether the caller-supplied secret opens the document the
// handle points at. A secret that does not open the document yields
// (false, nil); a handle with no published document yields ErrNotFound.
func (c *Channel) Resolve(ctx context.Context, handle, secret string) (_ bool, err error) {
	ctx, span := c.startSpan(ctx, "Resolve")
	defer func() { c.endSpan(span, err) }()

	userID, err := ParseHandle(handle)
	if err != nil {
		return false, err
	}

	rc, _, err := c.store.GetObject(ctx, c.bucket, objectKey(userID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return false, goerror.ErrNotFound
		}
		return false, goerror.Unreachable(err)
	}
	defer rc.Close()

	sealed, err := io.ReadAll(rc)
	if err != nil {
		return false, goerror.Unreachable(err)
	}

	doc, err := c.open(sealed, userID, secret)
	if err != nil {
		if errors.Is(err, secrets.ErrDecryptFailed) {
			return false, nil
		}
		return false, err
	}

	// A stale document left by an earlier request does not honor a newer
	// handle, and vice versa.
	return doc.Handle == handle && doc.UserID == userID, nil
}

// Revoke removes the published document for the user, invalidating every
// outstanding handle.
func (c *Channel) Revoke(ctx context.Context, userID int64) (err error) {
	ctx, span := c.startSpan(ctx, "Revoke")
	defer func() { c.endSpan(span, err) }()

	if err = c.store.DeleteObject(ctx, c.bucket, objectKey(userID)); err != nil {
		return goerror.Unreachable(err)
	}
	return nil
}

func (c *Channel) seal(doc document, secret string) ([]byte, error) {
	plain, err := json.Marshal(doc)
	if err != nil {
		return nil, goerror.Corrupt(err)
	}

	scope := secrets.Scope{UserID: doc.UserID, Purpose: secrets.PurposeRecoveryDoc}
	enc := secrets.NewAESGCM(secrets.DocumentKeyProvider{Secret: secret})

	sealed, err := enc.Encrypt(plain, scope)
	if err != nil {
		return nil, goerror.Corrupt(err)
	}
	return sealed, nil
}

func (c *Channel) open(sealed []byte, userID int64, secret string) (*document, error) {
	scope := secrets.Scope{UserID: userID, Purpose: secrets.PurposeRecoveryDoc}
	enc := secrets.NewAESGCM(secrets.DocumentKeyProvider{Secret: secret})

	plain, err := enc.Decrypt(sealed, scope)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, goerror.Corrupt(err)
	}
	return &doc, nil
}

func (c *Channel) publish(ctx context.Context, userID int64, handle string, sealed []byte) error {
	_, err := c.store.PutObject(ctx, c.bucket, objectKey(userID), bytes.NewReader(sealed), storage.PutOptions{
		Size:        int64(len(sealed)),
		ContentType: "application/octet-stream",
		Metadata:    map[string]string{"handle": handle},
	})
	return err
}

func objectKey(userID int64) string {
	return fmt.Sprintf("docs/%d.bin", userID)
}

func encodeHandle(userID int64, id string) string {
	raw := fmt.Sprintf("%s:%d:%s", handlePrefix, userID, id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseHandle extracts the user ID a handle points at without touching
// storage.
func ParseHandle(handle string) (int64, error) {
	raw, err := base64.RawURLEncoding.DecodeString(handle)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed handle", goerror.ErrNotFound)
	}

	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 || parts[0] != handlePrefix {
		return 0, fmt.Errorf("%w: malformed handle", goerror.ErrNotFound)
	}

	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("%w: malformed handle", goerror.ErrNotFound)
	}
	return userID, nil
}

func (c *Channel) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("credential.outbound.recovery").Start(ctx, name)
}

func (c *Channel) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
