package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"buzzhost/internal/model"
)

// TimerService drives the one-second question clock for each watched room.
// It subscribes to the room's game document and keeps exactly one ticking
// goroutine alive while the game is in progress with no buzz pending; any
// other state stops the clock. Freezing on a buzz therefore needs no
// coordination beyond the store's own update stream.
type TimerService struct {
	engine   *GameService
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	rooms   map[string]*roomTimer
	unsubs  map[string]func()
	stopped bool
}

type roomTimer struct {
	cancel context.CancelFunc
}

// NewTimerService creates the clock driver. It watches no rooms until Watch
// is called.
func NewTimerService(engine *GameService, logger *slog.Logger) *TimerService {
	return &TimerService{
		engine:   engine,
		logger:   logger,
		interval: time.Second,
		rooms:    make(map[string]*roomTimer),
		unsubs:   make(map[string]func()),
	}
}

// Watch starts tracking a room. Idempotent: watching an already-watched room
// is a no-op.
func (t *TimerService) Watch(roomID string) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	if _, ok := t.unsubs[roomID]; ok {
		t.mu.Unlock()
		return nil
	}
	// Reserve the slot before subscribing so concurrent Watch calls for the
	// same room cannot double-subscribe
	t.unsubs[roomID] = func() {}
	t.mu.Unlock()

	unsub, err := t.engine.store.SubscribeGame(roomID, func(g *model.GameState) {
		t.apply(roomID, g)
	})
	if err != nil {
		t.mu.Lock()
		delete(t.unsubs, roomID)
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	t.unsubs[roomID] = unsub
	t.mu.Unlock()

	// Seed from the current state so a game already in progress resumes
	// ticking after a restart
	if g, err := t.engine.Snapshot(context.Background(), roomID); err == nil {
		t.apply(roomID, g)
	}
	return nil
}

// apply reconciles the running state of the room's clock with the latest
// game document.
func (t *TimerService) apply(roomID string, g *model.GameState) {
	running := g != nil && g.Status == model.StatusInProgress &&
		g.CurrentQuestion != nil && !g.CurrentQuestion.BuzzPending()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	timer, active := t.rooms[roomID]
	if running && !active {
		ctx, cancel := context.WithCancel(context.Background())
		t.rooms[roomID] = &roomTimer{cancel: cancel}
		go t.run(ctx, roomID)
	} else if !running && active {
		timer.cancel()
		delete(t.rooms, roomID)
	}
}

// run ticks the room once per interval until cancelled. A tick that lands
// after a buzz or after the game ends is absorbed by the engine as a no-op.
func (t *TimerService) run(ctx context.Context, roomID string) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.engine.Tick(ctx, roomID); err != nil {
				if ctx.Err() != nil {
					return
				}
				t.logger.Warn("tick failed", "room", roomID, "error", err)
			}
		}
	}
}

// Close stops all clocks and subscriptions
func (t *TimerService) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	for roomID, timer := range t.rooms {
		timer.cancel()
		delete(t.rooms, roomID)
	}
	for roomID, unsub := range t.unsubs {
		unsub()
		delete(t.unsubs, roomID)
	}
}
