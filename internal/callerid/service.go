// Package callerid verifies numbers users want to present as caller ID by
// calling them and reading a one-time code.
package callerid

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"voip-platform/internal/apperr"
	"voip-platform/internal/metrics"
	"voip-platform/internal/telephony"
	"voip-platform/pkg/utils"

	"github.com/google/uuid"
)

// Sender delivers a code to a number. Implemented by telephony providers.
type Sender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

type Options struct {
	// CodeTTL defaults to 10 minutes.
	CodeTTL time.Duration
	// DefaultRegion applies to numbers entered without a country code.
	DefaultRegion string
}

type Service struct {
	store    Store
	sender   Sender
	throttle Throttle
	tx       utils.Transactor
	opts     Options
	log      *slog.Logger

	clock   func() time.Time
	newCode func() (string, error)
}

func NewService(store Store, tx utils.Transactor, sender Sender, throttle Throttle, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if throttle == nil {
		throttle = NoThrottle{}
	}
	if tx == nil {
		tx = utils.NoopTransactor{}
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	return &Service{
		store:    store,
		sender:   sender,
		throttle: throttle,
		tx:       tx,
		opts:     opts,
		log:      log,
		clock:    time.Now,
		newCode:  randomCode,
	}
}

// RequestVerification starts verification of phone for userID, replacing any
// earlier unverified attempt for the same number.
func (s *Service) RequestVerification(ctx context.Context, userID, phone string) (CallerID, error) {
	num, err := telephony.NormalizeNumber(phone, s.opts.DefaultRegion)
	if err != nil {
		return CallerID{}, ErrInvalidNumber
	}

	if _, err := s.store.FindVerified(ctx, userID, num.E164); err == nil {
		return CallerID{}, ErrAlreadyVerified
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return CallerID{}, err
	}

	key := throttleKey(userID, num.E164)
	ok, err := s.throttle.Allow(ctx, key)
	if err != nil {
		return CallerID{}, fmt.Errorf("callerid: throttle: %w", err)
	}
	if !ok {
		return CallerID{}, ErrRateLimited
	}

	code, err := s.newCode()
	if err != nil {
		return CallerID{}, fmt.Errorf("callerid: generate code: %w", err)
	}

	now := s.clock().UTC()
	expires := now.Add(s.opts.CodeTTL)
	c := CallerID{
		ID:            uuid.NewString(),
		UserID:        userID,
		PhoneNumber:   num.E164,
		Country:       num.Region,
		Status:        StatusPending,
		Code:          code,
		CodeExpiresAt: &expires,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		superseded, err := s.store.DeleteUnverified(ctx, userID, num.E164)
		if err != nil {
			return err
		}
		if superseded > 0 {
			s.log.InfoContext(ctx, "caller id verification superseded", "user_id", userID, "count", superseded)
		}
		return s.store.Insert(ctx, c)
	})
	if err != nil {
		return CallerID{}, err
	}

	if err := s.sender.SendVerificationCode(ctx, num.E164, code); err != nil {
		s.log.ErrorContext(ctx, "verification call failed", "user_id", userID, "caller_id", c.ID, "err", err)
		// Nothing reached the user, so the resend window must not apply.
		if rerr := s.throttle.Release(context.WithoutCancel(ctx), key); rerr != nil {
			s.log.WarnContext(ctx, "failed to release resend throttle", "user_id", userID, "err", rerr)
		}
		return CallerID{}, apperr.Wrap(apperr.KindProvider, ErrDeliveryFailed.Msg, err)
	}

	s.log.InfoContext(ctx, "caller id verification requested",
		"user_id", userID, "caller_id", c.ID, "country", c.Country, "expires_at", expires)
	return c, nil
}

// SubmitCode checks code against the record. The order of checks fixes which
// error wins: verified, then expiry, then attempt cap, then the code itself.
func (s *Service) SubmitCode(ctx context.Context, userID, callerIDID, code string) (CallerID, error) {
	c, err := s.store.Get(ctx, userID, callerIDID)
	if err != nil {
		return CallerID{}, err
	}
	now := s.clock().UTC()
	m := metrics.Get().VerificationAttempts

	switch {
	case c.Status == StatusVerified:
		m.WithLabelValues("already_verified").Inc()
		return c, ErrAlreadyVerified

	case c.expired(now):
		if _, err := s.store.RecordFailure(ctx, c.ID, StatusExpired, now); err != nil {
			return CallerID{}, err
		}
		m.WithLabelValues("expired").Inc()
		return CallerID{}, ErrCodeExpired

	case c.Attempts >= MaxAttempts:
		if _, err := s.store.SetStatus(ctx, c.ID, StatusFailed, now); err != nil {
			return CallerID{}, err
		}
		m.WithLabelValues("too_many_attempts").Inc()
		return CallerID{}, ErrTooManyAttempts

	case subtle.ConstantTimeCompare([]byte(code), []byte(c.Code)) != 1:
		if _, err := s.store.RecordFailure(ctx, c.ID, c.Status, now); err != nil {
			return CallerID{}, err
		}
		m.WithLabelValues("invalid_code").Inc()
		return CallerID{}, ErrInvalidCode
	}

	verified, err := s.store.MarkVerified(ctx, c.ID, now)
	if err != nil {
		return CallerID{}, err
	}
	m.WithLabelValues("verified").Inc()
	s.log.InfoContext(ctx, "caller id verified", "user_id", userID, "caller_id", c.ID)
	return verified, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]CallerID, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, callerIDID string) error {
	if err := s.store.Delete(ctx, userID, callerIDID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "caller id deleted", "user_id", userID, "caller_id", callerIDID)
	return nil
}

// FindVerified returns the user's VERIFIED record for phone, or ErrNotFound.
func (s *Service) FindVerified(ctx context.Context, userID, phone string) (CallerID, error) {
	num, err := telephony.NormalizeNumber(phone, s.opts.DefaultRegion)
	if err != nil {
		return CallerID{}, ErrInvalidNumber
	}
	return s.store.FindVerified(ctx, userID, num.E164)
}

var codeSpace = big.NewInt(1_000_000)

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
