// Package tguard is the HTTP client for the TGuard external verification provider.
package tguard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"relay-gate/internal/verification/domain"
)

const (
	DefaultCreateTimeout = 10 * time.Second
	DefaultPollTimeout   = 5 * time.Second

	createPath = "/api/verification/create"
	statusPath = "/api/v1/verification-status/"

	// maxBodyLog caps how much of a provider error body is kept.
	maxBodyLog = 1024
)

var errMissingFields = errors.New("missing token or verification_url")

type createRequest struct {
	UserID int64 `json:"user_id"`
}

type createResponse struct {
	Token           string `json:"token"`
	VerificationURL string `json:"verification_url"`
}

type statusResponse struct {
	Completed bool `json:"completed"`
}

// Client calls the provider's create and status endpoints. It never retries.
type Client struct {
	HTTPClient    *http.Client
	CreateTimeout time.Duration
	PollTimeout   time.Duration
	log           zerolog.Logger
	nowF          func() time.Time
}

// NewClient returns a client with the given call timeouts. Non-positive timeouts use the defaults.
func NewClient(createTimeout, pollTimeout time.Duration, log zerolog.Logger) *Client {
	if createTimeout <= 0 {
		createTimeout = DefaultCreateTimeout
	}
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}
	return &Client{
		HTTPClient:    &http.Client{},
		CreateTimeout: createTimeout,
		PollTimeout:   pollTimeout,
		log:           log,
		nowF:          time.Now,
	}
}

// CreateSession opens a verification session for userID. Missing credentials fail before any
// request is made.
func (c *Client) CreateSession(ctx context.Context, baseURL, apiKey string, userID int64) (*domain.ExternalSession, error) {
	const op = "tguard create session"
	if strings.TrimSpace(baseURL) == "" || strings.TrimSpace(apiKey) == "" {
		return nil, &domain.Error{Kind: domain.KindInvalidConfiguration, Op: op, Err: domain.ErrNotConfigured}
	}

	raw, err := jsoniter.Marshal(createRequest{UserID: userID})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.CreateTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, trimBase(baseURL)+createPath, bytes.NewReader(raw))
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindInvalidConfiguration, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &domain.Error{
			Kind: domain.KindProviderError,
			Op:   op,
			Err:  &domain.Error{Kind: domain.KindTransportFailure, Err: err},
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.Error{
			Kind: domain.KindProviderError,
			Op:   op,
			Err:  &domain.Error{Kind: domain.KindTransportFailure, Err: err},
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.Error{Kind: domain.KindProviderError, Op: op, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var out createResponse
	if err := jsoniter.Unmarshal(body, &out); err != nil {
		return nil, &domain.Error{Kind: domain.KindInvalidProviderResponse, Op: op, Body: truncate(body), Err: err}
	}
	if out.Token == "" || out.VerificationURL == "" {
		return nil, &domain.Error{
			Kind: domain.KindInvalidProviderResponse,
			Op:   op,
			Body: truncate(body),
			Err:  errMissingFields,
		}
	}
	return &domain.ExternalSession{
		UserID:          userID,
		Token:           out.Token,
		VerificationURL: out.VerificationURL,
		CreatedAt:       c.nowF().UTC(),
		TTL:             domain.ExternalSessionTTL,
	}, nil
}

// PollStatus asks the provider whether token has been completed. Anything other than a clean
// 200 or 404 is inconclusive and reported as StatusPending.
func (c *Client) PollStatus(ctx context.Context, baseURL, token string) domain.Status {
	if strings.TrimSpace(baseURL) == "" {
		c.log.Warn().Msg("tguard: status poll skipped, api url not configured")
		return domain.StatusPending
	}
	ctx, cancel := context.WithTimeout(ctx, c.PollTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimBase(baseURL)+statusPath+url.PathEscape(token), nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("tguard: build status request")
		return domain.StatusPending
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("tguard: status poll failed")
		return domain.StatusPending
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out statusResponse
		if err := jsoniter.NewDecoder(resp.Body).Decode(&out); err != nil {
			c.log.Warn().Err(err).Msg("tguard: undecodable status body")
			return domain.StatusPending
		}
		if out.Completed {
			return domain.StatusCompleted
		}
		return domain.StatusPending
	case http.StatusNotFound:
		return domain.StatusNotFound
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyLog))
		c.log.Warn().Int("status", resp.StatusCode).Str("body", string(b)).Msg("tguard: unexpected status poll response")
		return domain.StatusPending
	}
}

func trimBase(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

func truncate(b []byte) string {
	if len(b) > maxBodyLog {
		b = b[:maxBodyLog]
	}
	return string(b)
}
