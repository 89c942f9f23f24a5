// Package service implements the verification lifecycle: Unverified, ChallengeIssued and Verified,
// reconciled lazily on each inbound user action.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"relay-gate/internal/cache"
	"relay-gate/internal/notify"
	"relay-gate/internal/telemetry"
	telemetrydomain "relay-gate/internal/telemetry/domain"
	"relay-gate/internal/verification/domain"
)

// VerifiedRepo is the durable verified-users store needed by the coordinator.
type VerifiedRepo interface {
	IsVerified(ctx context.Context, userID int64) (bool, error)
	MarkVerified(ctx context.Context, userID int64) error
	Revoke(ctx context.Context, userID int64) error
	Count(ctx context.Context) (int, error)
}

// Settings is the settings projection needed by the coordinator.
type Settings interface {
	Mode(ctx context.Context) (domain.Mode, error)
	ProviderCredentials(ctx context.Context) (baseURL, apiKey string, err error)
}

// ChallengeGenerator issues challenges.
type ChallengeGenerator interface {
	Generate(ctx context.Context, userID int64, mode domain.Mode) (*domain.Challenge, error)
}

// StatusPoller asks the external provider for a session's status.
type StatusPoller interface {
	PollStatus(ctx context.Context, baseURL, token string) domain.Status
}

// Coordinator owns per-user verification state across the cache and the durable store.
type Coordinator struct {
	cache     cache.Store
	repo      VerifiedRepo
	settings  Settings
	generator ChallengeGenerator
	poller    StatusPoller
	presenter notify.Presenter
	notifier  notify.Notifier
	log       zerolog.Logger

	emitter telemetry.EventEmitter
	events  metric.Int64Counter
}

// NewCoordinator returns a Coordinator with the given dependencies. Telemetry is off until
// WithTelemetry is called.
func NewCoordinator(
	c cache.Store,
	repo VerifiedRepo,
	settings Settings,
	generator ChallengeGenerator,
	poller StatusPoller,
	presenter notify.Presenter,
	notifier notify.Notifier,
	log zerolog.Logger,
) *Coordinator {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	events, _ := noop.NewMeterProvider().Meter("").Int64Counter("")
	return &Coordinator{
		cache:     c,
		repo:      repo,
		settings:  settings,
		generator: generator,
		poller:    poller,
		presenter: presenter,
		notifier:  notifier,
		log:       log,
		events:    events,
	}
}

// WithTelemetry emits lifecycle events to emitter and counts them on meter. Either may be nil.
func (c *Coordinator) WithTelemetry(emitter telemetry.EventEmitter, meter metric.Meter) *Coordinator {
	c.emitter = emitter
	if meter != nil {
		counter, err := meter.Int64Counter(
			"relay_gate.verification.events",
			metric.WithDescription("Verification lifecycle events by type and mode."),
		)
		if err != nil {
			c.log.Warn().Err(err).Msg("verification events counter unavailable")
		} else {
			c.events = counter
		}
	}
	return c
}

func (c *Coordinator) record(ctx context.Context, userID int64, eventType string, mode domain.Mode) {
	c.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("mode", string(mode)),
	))
	telemetry.EmitAsync(c.emitter, ctx, telemetrydomain.NewEvent(userID, eventType, string(mode)), c.log)
}

// IsVerified reports whether userID is verified. A cached "1" answers directly; otherwise the
// durable store decides and a positive answer is projected. Unverified users are never cached, so
// records written outside this process take effect on the next call. A durable-store error is
// returned rather than reported as unverified.
func (c *Coordinator) IsVerified(ctx context.Context, userID int64) (bool, error) {
	key := domain.VerifiedKey(userID)
	v, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Int64("user_id", userID).Msg("verified cache read failed, using store")
	}
	if ok && v == "1" {
		return true, nil
	}

	verified, err := c.repo.IsVerified(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("verification: is verified %d: %w", userID, err)
	}
	c.project(ctx, userID, verified)
	return verified, nil
}

func (c *Coordinator) project(ctx context.Context, userID int64, verified bool) {
	if !verified {
		return
	}
	if err := c.cache.Set(ctx, domain.VerifiedKey(userID), "1", domain.VerifiedCacheTTL); err != nil {
		c.log.Warn().Err(err).Int64("user_id", userID).Msg("verified cache write failed")
	}
}

// MarkVerified records userID as verified in the durable store, then in the cache projection.
func (c *Coordinator) MarkVerified(ctx context.Context, userID int64) error {
	if err := c.repo.MarkVerified(ctx, userID); err != nil {
		return fmt.Errorf("verification: mark verified %d: %w", userID, err)
	}
	c.project(ctx, userID, true)
	return nil
}

// Revoke returns userID to Unverified: the durable record, the projection and any pending
// challenge or provider session are removed.
func (c *Coordinator) Revoke(ctx context.Context, userID int64) error {
	if err := c.repo.Revoke(ctx, userID); err != nil {
		return fmt.Errorf("verification: revoke %d: %w", userID, err)
	}
	if err := c.cache.Delete(ctx, domain.VerifiedKey(userID)); err != nil {
		return fmt.Errorf("verification: revoke %d: drop projection: %w", userID, err)
	}
	c.clearPending(ctx, userID)
	c.record(ctx, userID, telemetrydomain.EventRevoked, "")
	return nil
}

func (c *Coordinator) clearPending(ctx context.Context, userID int64) {
	for _, key := range []string{domain.CaptchaKey(userID), domain.SessionKey(userID)} {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("pending challenge delete failed")
		}
	}
}

// VerifiedCount returns the number of durably verified users.
func (c *Coordinator) VerifiedCount(ctx context.Context) (int, error) {
	return c.repo.Count(ctx)
}

// Issue issues a challenge in the configured mode.
func (c *Coordinator) Issue(ctx context.Context, userID int64) (*domain.Challenge, error) {
	mode, err := c.configuredMode(ctx)
	if err != nil {
		return nil, err
	}
	return c.IssueMode(ctx, userID, mode)
}

// configuredMode reads the captcha setting. An unknown stored mode is reported to the operator.
func (c *Coordinator) configuredMode(ctx context.Context) (domain.Mode, error) {
	mode, err := c.settings.Mode(ctx)
	if err != nil && domain.KindOf(err) == domain.KindInvalidConfiguration {
		c.log.Error().Err(err).Msg("invalid captcha setting")
		c.notifier.NotifyOperator(ctx, "Invalid captcha setting: "+err.Error())
	}
	return mode, err
}

// IssueMode issues a challenge in mode, replacing any pending challenge for userID.
func (c *Coordinator) IssueMode(ctx context.Context, userID int64, mode domain.Mode) (*domain.Challenge, error) {
	ch, err := c.generator.Generate(ctx, userID, mode)
	if err != nil {
		c.record(ctx, userID, telemetrydomain.EventChallengeFailed, mode)
		return nil, err
	}
	c.record(ctx, userID, telemetrydomain.EventChallengeIssued, mode)
	return ch, nil
}

// VerifyAnswer checks answer against userID's pending math challenge. A correct answer consumes the
// challenge and promotes the user; a wrong one leaves the challenge live until it expires.
func (c *Coordinator) VerifyAnswer(ctx context.Context, userID int64, answer string) (bool, error) {
	key := domain.CaptchaKey(userID)
	expected, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Int64("user_id", userID).Msg("math challenge read failed")
		return false, nil
	}
	if !ok || strings.TrimSpace(answer) != expected {
		if ok {
			c.record(ctx, userID, telemetrydomain.EventChallengeFailed, domain.ModeMath)
		}
		return false, nil
	}

	if err := c.MarkVerified(ctx, userID); err != nil {
		return false, err
	}
	if err := c.cache.Delete(ctx, key); err != nil {
		c.log.Warn().Err(err).Int64("user_id", userID).Msg("math challenge delete failed")
	}
	c.record(ctx, userID, telemetrydomain.EventVerified, domain.ModeMath)
	return true, nil
}

// ConfirmButton promotes userID when the confirmation button was pressed by that same user.
func (c *Coordinator) ConfirmButton(ctx context.Context, userID, pressedBy int64) (bool, error) {
	if userID != pressedBy {
		return false, nil
	}
	if err := c.MarkVerified(ctx, userID); err != nil {
		return false, err
	}
	c.record(ctx, userID, telemetrydomain.EventVerified, domain.ModeButton)
	return true, nil
}

// Resolve reconciles userID's external session with the provider. It runs only when called; there
// is no background polling.
func (c *Coordinator) Resolve(ctx context.Context, userID int64) (domain.Resolution, error) {
	key := domain.SessionKey(userID)
	var s domain.ExternalSession
	ok, err := cache.GetJSON(ctx, c.cache, key, &s)
	if err != nil {
		c.log.Warn().Err(err).Int64("user_id", userID).Msg("external session unreadable, discarding")
		_ = c.cache.Delete(ctx, key)
		return domain.ResolutionNoSession, nil
	}
	if !ok || s.Token == "" {
		return domain.ResolutionNoSession, nil
	}

	baseURL, _, err := c.settings.ProviderCredentials(ctx)
	if err != nil {
		return domain.ResolutionPending, err
	}

	switch c.poller.PollStatus(ctx, baseURL, s.Token) {
	case domain.StatusCompleted:
		if err := c.MarkVerified(ctx, userID); err != nil {
			return domain.ResolutionPending, err
		}
		if err := c.cache.Delete(ctx, key); err != nil {
			c.log.Warn().Err(err).Int64("user_id", userID).Msg("external session delete failed")
		}
		if err := c.presenter.NotifyVerified(ctx, userID); err != nil {
			c.log.Debug().Err(err).Int64("user_id", userID).Msg("verified notice not delivered")
		}
		c.log.Info().Int64("user_id", userID).Msg("user completed tguard verification")
		c.record(ctx, userID, telemetrydomain.EventVerified, domain.ModeExternal)
		return domain.ResolutionVerified, nil
	case domain.StatusNotFound:
		c.log.Warn().Int64("user_id", userID).Msg("tguard verification token expired")
		if err := c.cache.Delete(ctx, key); err != nil {
			c.log.Warn().Err(err).Int64("user_id", userID).Msg("external session delete failed")
		}
		c.record(ctx, userID, telemetrydomain.EventSessionExpired, domain.ModeExternal)
		return domain.ResolutionExpired, nil
	default:
		return domain.ResolutionPending, nil
	}
}
