package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"relay-gate/internal/cache"
	telemetrydomain "relay-gate/internal/telemetry/domain"
	"relay-gate/internal/tguard"
	"relay-gate/internal/verification/challenge"
	"relay-gate/internal/verification/domain"
)

var errStoreDown = errors.New("store down")

type memVerifiedRepo struct {
	mu       sync.Mutex
	verified map[int64]bool
	reads    int
	err      error
}

func newMemVerifiedRepo() *memVerifiedRepo {
	return &memVerifiedRepo{verified: make(map[int64]bool)}
}

func (r *memVerifiedRepo) IsVerified(ctx context.Context, userID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.err != nil {
		return false, r.err
	}
	return r.verified[userID], nil
}

func (r *memVerifiedRepo) MarkVerified(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.verified[userID] = true
	return nil
}

func (r *memVerifiedRepo) Revoke(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.verified, userID)
	return nil
}

func (r *memVerifiedRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.verified), r.err
}

func (r *memVerifiedRepo) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

type fakeSettings struct {
	mu      sync.Mutex
	mode    domain.Mode
	modeErr error
	url     string
	key     string
}

func (s *fakeSettings) Mode(ctx context.Context) (domain.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.modeErr
}

func (s *fakeSettings) ProviderCredentials(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, s.key, nil
}

type fakePoller struct {
	mu     sync.Mutex
	status domain.Status
	tokens []string
}

func (p *fakePoller) PollStatus(ctx context.Context, baseURL, token string) domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, token)
	return p.status
}

type fakePresenter struct {
	mu       sync.Mutex
	buttons  []int64
	links    []string
	verified []int64
	err      error
}

func (p *fakePresenter) PresentButton(ctx context.Context, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buttons = append(p.buttons, userID)
	return p.err
}

func (p *fakePresenter) PresentLink(ctx context.Context, userID int64, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links = append(p.links, url)
	return p.err
}

func (p *fakePresenter) NotifyVerified(ctx context.Context, userID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified = append(p.verified, userID)
	return p.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) NotifyOperator(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetrydomain.Event
}

func (e *recordingEmitter) Emit(ctx context.Context, event *telemetrydomain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

// waitForTypes polls until every wanted event type has been emitted or the deadline passes.
func (e *recordingEmitter) waitForTypes(want ...string) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		seen := make(map[string]bool)
		for _, ev := range e.events {
			seen[ev.EventType] = true
		}
		e.mu.Unlock()
		all := true
		for _, w := range want {
			all = all && seen[w]
		}
		if all {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

type brokenCache struct{}

func (brokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return errStoreDown
}
func (brokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errStoreDown
}
func (brokenCache) Delete(ctx context.Context, key string) error { return errStoreDown }

// scriptedSource replays fixed Int63 values so rand.Intn(10) results are known in advance.
type scriptedSource struct {
	vals []int64
	i    int
}

func (s *scriptedSource) Int63() int64 {
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func (s *scriptedSource) Seed(int64) {}

func intnSource(want ...int) *rand.Rand {
	vals := make([]int64, len(want))
	for i, w := range want {
		vals[i] = int64(w) << 32
	}
	return rand.New(&scriptedSource{vals: vals})
}

type testEnv struct {
	coord     *Coordinator
	cache     *cache.MemoryStore
	repo      *memVerifiedRepo
	settings  *fakeSettings
	poller    *fakePoller
	presenter *fakePresenter
	notifier  *fakeNotifier
}

// newTestEnv wires a coordinator over an in-memory cache and repository with a real generator.
// The external poller is a fake; session creation goes through the real provider client.
func newTestEnv(mode domain.Mode, rng *rand.Rand) *testEnv {
	c := cache.NewMemoryStore()
	repo := newMemVerifiedRepo()
	settings := &fakeSettings{mode: mode}
	poller := &fakePoller{}
	presenter := &fakePresenter{}
	notifier := &fakeNotifier{}
	gen := challenge.NewGenerator(c, settings, tguard.NewClient(0, 0, zerolog.Nop()), presenter, notifier, rng, zerolog.Nop())
	coord := NewCoordinator(c, repo, settings, gen, poller, presenter, notifier, zerolog.Nop())
	return &testEnv{
		coord:     coord,
		cache:     c,
		repo:      repo,
		settings:  settings,
		poller:    poller,
		presenter: presenter,
		notifier:  notifier,
	}
}

// seedSession caches an external session for userID as the generator would.
func (e *testEnv) seedSession(userID int64, token string) {
	s := &domain.ExternalSession{
		UserID:          userID,
		Token:           token,
		VerificationURL: "https://tguard.example/v/" + token,
		CreatedAt:       time.Now().UTC(),
		TTL:             domain.ExternalSessionTTL,
	}
	_ = cache.SetJSON(context.Background(), e.cache, domain.SessionKey(userID), s, domain.ExternalSessionTTL)
}
