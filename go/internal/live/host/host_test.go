package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/broadcast"
	"github.com/mcdev12/musicbingo/go/internal/live/kv"
	"github.com/mcdev12/musicbingo/go/internal/live/lock"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/models"
	"github.com/mcdev12/musicbingo/go/internal/reveal"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu          sync.Mutex
	status      playback.Status
	statusErr   error
	cmdErr      error
	statusCalls int
	commands    []playback.Command
	onCommand   func(cmd playback.Command, status *playback.Status)

	// hang makes Status wait for its context to end.
	hang           bool
	statusDeadline time.Time
	cmdDeadline    time.Time
}

func (f *fakeAdapter) Status(ctx context.Context, _ string) (playback.Status, error) {
	f.mu.Lock()
	f.statusCalls++
	f.statusDeadline, _ = ctx.Deadline()
	if f.hang {
		f.mu.Unlock()
		<-ctx.Done()
		return playback.Status{}, ctx.Err()
	}
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return playback.Status{}, f.statusErr
	}
	return f.status, nil
}

func (f *fakeAdapter) Command(ctx context.Context, cmd playback.Command) (playback.CommandResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	f.cmdDeadline, _ = ctx.Deadline()
	if f.cmdErr != nil {
		return playback.CommandResponse{}, f.cmdErr
	}
	if f.onCommand != nil {
		f.onCommand(cmd, &f.status)
	}
	return playback.CommandResponse{Status: f.status, OK: true, Action: cmd.Action}, nil
}

func (f *fakeAdapter) set(fn func(f *fakeAdapter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAdapter) sent() []playback.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playback.Command(nil), f.commands...)
}

func (f *fakeAdapter) deadlines() (status, cmd time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusDeadline, f.cmdDeadline
}

func (f *fakeAdapter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func playing(id, title, artist string, progressMs int64) playback.Status {
	return playback.Status{
		Connected:          true,
		CanControlPlayback: true,
		ActiveDevice:       &playback.Device{ID: "d1", Name: "Bar", IsActive: true},
		Playback: &playback.Playback{
			IsPlaying:  true,
			ProgressMs: progressMs,
			PlaylistID: "pl-1",
			Item: &playback.Item{
				ID:         id,
				Name:       title,
				Artists:    []string{artist},
				Album:      "Album",
				DurationMs: 240000,
			},
		},
	}
}

func testConfig() *models.SessionConfig {
	cfg := &models.SessionConfig{
		ID:   "session-1",
		Name: "Friday bingo",
		Games: []models.GameConfig{
			{Number: 1, Theme: "Rock", PlaylistID: "pl-1", ChallengeSong: reveal.ChallengeSong{Artist: "Queen", Title: "Bohemian Rhapsody"}},
			{Number: 2, Theme: "Pop", PlaylistID: "pl-2"},
		},
		BreakPlaylistID: "pl-break",
	}
	cfg.ApplyDefaults()
	return cfg
}

type harness struct {
	ctx        context.Context
	clock      *clockwork.FakeClock
	kv         kv.Store
	adapter    *fakeAdapter
	store      *runtime.Store
	locks      *lock.Manager
	breaker    *Breaker
	rec        *Reconciler
	poller     *Poller
	dispatcher *Dispatcher
}

func newHarness(t *testing.T, owner string) *harness {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	store := kv.NewMemory()
	adapter := &fakeAdapter{status: playback.Status{Connected: true, CanControlPlayback: true, ActiveDevice: &playback.Device{ID: "d1"}}}

	rs := runtime.NewStore(cfg.ID, "host-tab", store, broadcast.NewMemory(), clock)
	locks := lock.NewManager(cfg.ID, store, clock, 0)
	res, err := locks.Acquire(ctx, owner, false)
	require.NoError(t, err)
	require.True(t, res.Acquired)

	breaker := &Breaker{}
	rec := NewReconciler(cfg, rs, clock)
	return &harness{
		ctx:        ctx,
		clock:      clock,
		kv:         store,
		adapter:    adapter,
		store:      rs,
		locks:      locks,
		breaker:    breaker,
		rec:        rec,
		poller:     NewPoller("host-tab", adapter, rs, rec, locks, breaker, clock, 0),
		dispatcher: NewDispatcher("host-tab", cfg, adapter, rs, rec, locks, breaker),
	}
}

// running puts the store into game 1 with the given observation folded in.
func (h *harness) running(t *testing.T, st playback.Status) runtime.State {
	t.Helper()
	h.adapter.set(func(f *fakeAdapter) { f.status = st })
	s, err := h.rec.Fold(h.ctx, st, func(s runtime.State) runtime.State {
		s.Mode = runtime.ModeRunning
		s.ActiveGameNumber = 1
		return s
	}, "")
	require.NoError(t, err)
	return s
}
