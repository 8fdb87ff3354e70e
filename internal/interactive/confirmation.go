package interactive

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"idserver/internal/oauth"
	"idserver/internal/platform/metrics"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/publisher"
	"idserver/pkg/platform/sentinel"
)

// confirmationCodeTTL is how long a dispatched second-factor code stays
// redeemable.
const confirmationCodeTTL = 5 * time.Minute

// maxGenerateAttempts caps collision retries when minting a confirmation
// code. The keyspace holds 900,000 values, so hitting the cap means the store
// is badly degraded, not that we are unlucky.
const maxGenerateAttempts = 10

// ErrConfirmationInvalid covers unknown, expired and already redeemed codes
// alike.
var ErrConfirmationInvalid = oauth.NewError(oauth.ErrInvalidRequest, "confirmation code is not valid")

// ConfirmationStore persists in-flight confirmation codes. Add must fail with
// sentinel.ErrConflict when the code value is already in flight.
type ConfirmationStore interface {
	Add(ctx context.Context, code *oauth.ConfirmationCode) error
	Get(ctx context.Context, code string) (*oauth.ConfirmationCode, error)
	Remove(ctx context.Context, code string) error
}

// Dispatcher delivers a confirmation code over one channel (sms, email).
type Dispatcher interface {
	Dispatch(ctx context.Context, owner *oauth.ResourceOwner, code string) error
}

// Confirmation generates, dispatches and redeems second-factor codes.
type Confirmation struct {
	store       ConfirmationStore
	dispatchers map[oauth.TwoFactorChannel]Dispatcher

	audit   *publisher.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewConfirmation(store ConfirmationStore, dispatchers map[oauth.TwoFactorChannel]Dispatcher, auditPub *publisher.Publisher, m *metrics.Metrics) *Confirmation {
	return &Confirmation{
		store:       store,
		dispatchers: dispatchers,
		audit:       auditPub,
		metrics:     m,
		now:         time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (c *Confirmation) WithClock(now func() time.Time) *Confirmation {
	c.now = now
	return c
}

// Send mints a code unique among in-flight codes and dispatches it over the
// owner's configured channel.
func (c *Confirmation) Send(ctx context.Context, owner *oauth.ResourceOwner) error {
	dispatcher, ok := c.dispatchers[owner.TwoFactor]
	if !ok {
		return fmt.Errorf("no dispatcher configured for channel %q", owner.TwoFactor)
	}

	code, err := c.mint(ctx, owner.Subject)
	if err != nil {
		return err
	}
	if err := dispatcher.Dispatch(ctx, owner, code.Code); err != nil {
		// Undo so an undeliverable code cannot be guessed later.
		_ = c.store.Remove(ctx, code.Code)
		return fmt.Errorf("dispatch confirmation code: %w", err)
	}

	c.metrics.ConfirmationCodesSent.Inc()
	if c.audit != nil {
		_ = c.audit.Emit(ctx, audit.Event{
			Subject: owner.Subject,
			Action:  string(audit.EventConfirmationCodeSent),
			Reason:  string(owner.TwoFactor),
		})
	}
	return nil
}

// Validate redeems a code for the subject. The code is removed on success;
// single use.
func (c *Confirmation) Validate(ctx context.Context, subject, code string) error {
	stored, err := c.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.fail(ctx, subject, "unknown code")
			return ErrConfirmationInvalid
		}
		return err
	}
	if stored.Subject != subject {
		c.fail(ctx, subject, "code belongs to another subject")
		return ErrConfirmationInvalid
	}
	if !stored.Valid(c.now().UTC()) {
		c.fail(ctx, subject, "code expired")
		return ErrConfirmationInvalid
	}
	if err := c.store.Remove(ctx, code); err != nil {
		return err
	}

	if c.audit != nil {
		_ = c.audit.Emit(ctx, audit.Event{
			Subject: subject,
			Action:  string(audit.EventConfirmationCodeValidated),
		})
	}
	return nil
}

func (c *Confirmation) fail(ctx context.Context, subject, reason string) {
	c.metrics.ConfirmationFailures.Inc()
	if c.audit != nil {
		_ = c.audit.Emit(ctx, audit.Event{
			Subject: subject,
			Action:  string(audit.EventConfirmationCodeValidated),
			Reason:  reason,
		})
	}
}

// mint draws six-digit codes until one is unique among in-flight codes, with a
// hard retry cap.
func (c *Confirmation) mint(ctx context.Context, subject string) (*oauth.ConfirmationCode, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		value, err := sixDigitCode()
		if err != nil {
			return nil, err
		}
		code := &oauth.ConfirmationCode{
			Code:      value,
			Subject:   subject,
			CreatedAt: c.now().UTC(),
			ExpiresIn: confirmationCodeTTL,
		}
		err = c.store.Add(ctx, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("could not mint a unique confirmation code after %d attempts", maxGenerateAttempts)
}

// sixDigitCode draws uniformly from [100000, 999999].
func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate confirmation code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
