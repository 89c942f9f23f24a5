// Package service reads and writes operator settings through a cache projection backed by the
// settings table.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"relay-gate/internal/cache"
	"relay-gate/internal/settings/domain"
	"relay-gate/internal/settings/repository"
	vdomain "relay-gate/internal/verification/domain"
)

// Service serves settings from the cache projection, falling back to the repository on a miss.
type Service struct {
	cache       cache.Store
	repo        repository.Repository
	defaultMode vdomain.Mode
	log         zerolog.Logger
}

// NewService returns a settings service. defaultMode is used when the captcha setting is unset.
func NewService(c cache.Store, repo repository.Repository, defaultMode vdomain.Mode, log zerolog.Logger) *Service {
	return &Service{cache: c, repo: repo, defaultMode: defaultMode, log: log}
}

// Get returns the value of key, or "" when it is not configured. A cache error is treated as a
// miss; only a repository error is returned.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	ck := domain.CacheKey(key)
	v, ok, err := s.cache.Get(ctx, ck)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("settings cache read failed, using store")
	}
	if ok {
		return v, nil
	}

	v, ok, err = s.repo.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("settings: get %s: %w", key, err)
	}
	if !ok || v == "" {
		return "", nil
	}
	if err := s.cache.Set(ctx, ck, v, domain.CacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("settings cache write failed")
	}
	return v, nil
}

// Set writes key to the repository, then refreshes the projection.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.repo.Set(ctx, key, value); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	ck := domain.CacheKey(key)
	if value == "" {
		if err := s.cache.Delete(ctx, ck); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("settings cache delete failed")
		}
		return nil
	}
	if err := s.cache.Set(ctx, ck, value, domain.CacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("settings cache write failed")
	}
	return nil
}

// Mode returns the configured challenge mode, or the default when unset. A stored value that
// is not a known mode is an InvalidConfiguration error.
func (s *Service) Mode(ctx context.Context) (vdomain.Mode, error) {
	v, err := s.Get(ctx, domain.KeyCaptcha)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return s.defaultMode, nil
	}
	return vdomain.ParseMode(v)
}

// ProviderCredentials returns the external provider base URL and API key. Either may be empty.
func (s *Service) ProviderCredentials(ctx context.Context) (baseURL, apiKey string, err error) {
	if baseURL, err = s.Get(ctx, domain.KeyTGuardURL); err != nil {
		return "", "", err
	}
	if apiKey, err = s.Get(ctx, domain.KeyTGuardKey); err != nil {
		return "", "", err
	}
	return baseURL, apiKey, nil
}
