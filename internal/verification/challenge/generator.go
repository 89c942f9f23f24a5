// Package challenge issues math, button and external-provider challenges.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relay-gate/internal/cache"
	"relay-gate/internal/notify"
	"relay-gate/internal/verification/domain"
)

// CredentialSource returns the external provider base URL and API key.
type CredentialSource interface {
	ProviderCredentials(ctx context.Context) (baseURL, apiKey string, err error)
}

// SessionCreator opens sessions at the external provider.
type SessionCreator interface {
	CreateSession(ctx context.Context, baseURL, apiKey string, userID int64) (*domain.ExternalSession, error)
}

// Generator creates challenges and stores their pending state in the cache.
type Generator struct {
	cache     cache.Store
	creds     CredentialSource
	provider  SessionCreator
	presenter notify.Presenter
	notifier  notify.Notifier
	log       zerolog.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	nowF func() time.Time
}

// NewGenerator returns a generator. A nil rng is seeded from the clock.
func NewGenerator(
	c cache.Store,
	creds CredentialSource,
	provider SessionCreator,
	presenter notify.Presenter,
	notifier notify.Notifier,
	rng *rand.Rand,
	log zerolog.Logger,
) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Generator{
		cache:     c,
		creds:     creds,
		provider:  provider,
		presenter: presenter,
		notifier:  notifier,
		rng:       rng,
		log:       log,
		nowF:      time.Now,
	}
}

// Generate issues a challenge of the given mode to userID, replacing any pending one.
func (g *Generator) Generate(ctx context.Context, userID int64, mode domain.Mode) (*domain.Challenge, error) {
	switch mode {
	case domain.ModeMath:
		return g.math(ctx, userID)
	case domain.ModeButton:
		return g.button(ctx, userID)
	case domain.ModeExternal:
		return g.external(ctx, userID)
	}
	err := &domain.Error{Kind: domain.KindInvalidConfiguration, Op: "generate challenge", Body: string(mode), Err: domain.ErrUnknownMode}
	g.log.Error().Err(err).Int64("user_id", userID).Msg("invalid captcha setting")
	g.notifier.NotifyOperator(ctx, fmt.Sprintf("Invalid captcha setting %q", string(mode)))
	return nil, err
}

func (g *Generator) draw() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(10) + 1, g.rng.Intn(10) + 1
}

func (g *Generator) math(ctx context.Context, userID int64) (*domain.Challenge, error) {
	a, b := g.draw()
	answer := strconv.Itoa(a + b)
	if err := g.cache.Set(ctx, domain.CaptchaKey(userID), answer, domain.MathChallengeTTL); err != nil {
		return nil, fmt.Errorf("challenge: store math answer: %w", err)
	}
	return &domain.Challenge{
		UserID:         userID,
		Mode:           domain.ModeMath,
		ExpectedAnswer: answer,
		Prompt:         fmt.Sprintf("%d + %d = ?", a, b),
		CreatedAt:      g.nowF().UTC(),
		TTL:            domain.MathChallengeTTL,
	}, nil
}

func (g *Generator) button(ctx context.Context, userID int64) (*domain.Challenge, error) {
	if err := g.presenter.PresentButton(ctx, userID); err != nil {
		return nil, fmt.Errorf("challenge: present button: %w", err)
	}
	return &domain.Challenge{UserID: userID, Mode: domain.ModeButton, CreatedAt: g.nowF().UTC()}, nil
}

func (g *Generator) external(ctx context.Context, userID int64) (*domain.Challenge, error) {
	baseURL, apiKey, err := g.creds.ProviderCredentials(ctx)
	if err != nil {
		return nil, err
	}
	s, err := g.provider.CreateSession(ctx, baseURL, apiKey, userID)
	if err != nil {
		g.reportProviderFailure(ctx, userID, err)
		return nil, err
	}
	if err := cache.SetJSON(ctx, g.cache, domain.SessionKey(userID), s, domain.ExternalSessionTTL); err != nil {
		return nil, fmt.Errorf("challenge: store session: %w", err)
	}
	if err := g.presenter.PresentLink(ctx, userID, s.VerificationURL); err != nil {
		if derr := g.cache.Delete(ctx, domain.SessionKey(userID)); derr != nil {
			g.log.Warn().Err(derr).Int64("user_id", userID).Msg("undelivered session delete failed")
		}
		return nil, fmt.Errorf("challenge: present link: %w", err)
	}
	return &domain.Challenge{
		UserID:    userID,
		Mode:      domain.ModeExternal,
		CreatedAt: s.CreatedAt,
		TTL:       domain.ExternalSessionTTL,
	}, nil
}

// reportProviderFailure logs err and sends one operator warning for it.
func (g *Generator) reportProviderFailure(ctx context.Context, userID int64, err error) {
	ev := g.log.Error().Err(err).Int64("user_id", userID).Str("kind", domain.KindOf(err).String())
	var de *domain.Error
	if errors.As(err, &de) && de.StatusCode != 0 {
		ev = ev.Int("status", de.StatusCode).Str("body", de.Body)
	}
	ev.Msg("tguard session create failed")

	var text string
	switch domain.KindOf(err) {
	case domain.KindInvalidConfiguration:
		text = "TGuard API URL or Key not configured"
	case domain.KindInvalidProviderResponse:
		text = fmt.Sprintf("TGuard verification error: Invalid response from TGuard API\nUser ID: %d", userID)
	case domain.KindProviderError:
		text = fmt.Sprintf("TGuard API error: %v\nUser ID: %d", err, userID)
	default:
		text = fmt.Sprintf("TGuard verification error: %v\nUser ID: %d", err, userID)
	}
	g.notifier.NotifyOperator(ctx, text)
}
