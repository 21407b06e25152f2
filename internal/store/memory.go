package store

import (
	"context"
	"encoding/json"
	"sync"

	"buzzhost/internal/model"
)

// MemoryStore is an in-process GameStore. Updates are serialized by a single
// mutex, which gives the same commit-or-nothing semantics the redis store
// gets from WATCH transactions. Suitable for tests and single-process runs
// without a redis backend.
type MemoryStore struct {
	mu      sync.Mutex
	games   map[string]*model.GameState
	players map[string]map[string]*model.Player

	nextSub  int
	gameSubs map[string]map[int]func(*model.GameState)
	playSubs map[string]map[int]func([]model.Player)
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:    make(map[string]*model.GameState),
		players:  make(map[string]map[string]*model.Player),
		gameSubs: make(map[string]map[int]func(*model.GameState)),
		playSubs: make(map[string]map[int]func([]model.Player)),
	}
}

// clone deep-copies through the wire encoding so callers and subscribers
// never alias stored state.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}

func (s *MemoryStore) CreateGame(_ context.Context, game *model.GameState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return false, nil
	}
	s.games[game.ID] = clone(game)
	if s.players[game.ID] == nil {
		s.players[game.ID] = make(map[string]*model.Player)
	}
	return true, nil
}

func (s *MemoryStore) GetGame(_ context.Context, roomID string) (*model.GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[roomID]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return clone(game), nil
}

func (s *MemoryStore) GetPlayer(_ context.Context, roomID, playerID string) (*model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[roomID][playerID]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return clone(p), nil
}

func (s *MemoryStore) GetPlayers(_ context.Context, roomID string) ([]model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[roomID]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return orderPlayers(clone(game), s.cloneDocs(roomID)), nil
}

func (s *MemoryStore) cloneDocs(roomID string) map[string]*model.Player {
	docs := make(map[string]*model.Player, len(s.players[roomID]))
	for id, p := range s.players[roomID] {
		docs[id] = clone(p)
	}
	return docs
}

func (s *MemoryStore) UpdateGame(ctx context.Context, roomID string, mutate func(*model.GameState) error) (*model.GameState, error) {
	return s.update(roomID, false, func(g *model.GameState, _ map[string]*model.Player) error {
		return mutate(g)
	})
}

func (s *MemoryStore) UpdateGameAndPlayers(ctx context.Context, roomID string, mutate func(*model.GameState, map[string]*model.Player) error) (*model.GameState, error) {
	return s.update(roomID, true, mutate)
}

func (s *MemoryStore) update(roomID string, withPlayers bool, mutate func(*model.GameState, map[string]*model.Player) error) (*model.GameState, error) {
	s.mu.Lock()
	stored, ok := s.games[roomID]
	if !ok {
		s.mu.Unlock()
		return nil, model.ErrGameNotFound
	}

	game := clone(stored)
	docs := s.cloneDocs(roomID)

	if err := mutate(game, docs); err != nil {
		s.mu.Unlock()
		if err == ErrUnchanged {
			return game, nil
		}
		return nil, err
	}

	s.games[roomID] = clone(game)
	var ordered []model.Player
	if withPlayers {
		if s.players[roomID] == nil {
			s.players[roomID] = make(map[string]*model.Player)
		}
		for id, p := range docs {
			s.players[roomID][id] = clone(p)
		}
		ordered = orderPlayers(game, docs)
	}

	gameFns := make([]func(*model.GameState), 0, len(s.gameSubs[roomID]))
	for _, fn := range s.gameSubs[roomID] {
		gameFns = append(gameFns, fn)
	}
	playFns := make([]func([]model.Player), 0, len(s.playSubs[roomID]))
	if withPlayers {
		for _, fn := range s.playSubs[roomID] {
			playFns = append(playFns, fn)
		}
	}
	s.mu.Unlock()

	// Deliver outside the lock; each subscriber gets its own copy.
	for _, fn := range playFns {
		list := make([]model.Player, len(ordered))
		copy(list, ordered)
		fn(list)
	}
	for _, fn := range gameFns {
		fn(clone(game))
	}
	return game, nil
}

func (s *MemoryStore) SubscribeGame(roomID string, fn func(*model.GameState)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gameSubs[roomID] == nil {
		s.gameSubs[roomID] = make(map[int]func(*model.GameState))
	}
	id := s.nextSub
	s.nextSub++
	s.gameSubs[roomID][id] = fn
	return func() {
		s.mu.Lock()
		delete(s.gameSubs[roomID], id)
		s.mu.Unlock()
	}, nil
}

func (s *MemoryStore) SubscribePlayers(roomID string, fn func([]model.Player)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playSubs[roomID] == nil {
		s.playSubs[roomID] = make(map[int]func([]model.Player))
	}
	id := s.nextSub
	s.nextSub++
	s.playSubs[roomID][id] = fn
	return func() {
		s.mu.Lock()
		delete(s.playSubs[roomID], id)
		s.mu.Unlock()
	}, nil
}

func (s *MemoryStore) Scores(_ context.Context, roomID string, limit int) ([]model.ScoreEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[roomID]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return scoresView(clone(game), limit), nil
}

func (s *MemoryStore) Close() error { return nil }
