package services

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{cur: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

// syncBuffer lets concurrent goroutines share one log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fastHasher(t *testing.T) *auth.Hasher {
	t.Helper()
	h, err := auth.NewHasher(auth.HasherParams{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	return h
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorageMode = config.StorageMemory
	cfg.SecretKey = "test-secret"
	cfg.LockoutThreshold = 3
	cfg.ExposeTokens = true
	return cfg
}

type env struct {
	store  *memory.Store
	clock  *fakeClock
	hasher *auth.Hasher
	logs   *syncBuffer
	auth   *AuthService
	users  *UserService
}

func newEnv(t *testing.T, mutate ...func(*config.Config)) *env {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	e := &env{
		store:  memory.NewStore(),
		clock:  newFakeClock(),
		hasher: fastHasher(t),
		logs:   &syncBuffer{},
	}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(e.logs, &slog.HandlerOptions{Level: slog.LevelDebug})))

	var err error
	e.auth, err = NewAuthService(e.store, e.store, e.hasher, cfg, log, WithClock(e.clock.Now))
	require.NoError(t, err)
	e.users = NewUserService(e.store, e.store, e.hasher, log, WithClock(e.clock.Now))
	return e
}

func (e *env) register(t *testing.T, name, email, password string) *Session {
	t.Helper()
	s, err := e.auth.Register(context.Background(), name, email, password)
	require.NoError(t, err)
	return s
}
