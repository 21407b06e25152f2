package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"buzzhost/internal/model"
)

// txRetries bounds the optimistic-transaction retry loop. Each retry re-runs
// the mutator against the fresh state, so a lost race is re-checked, not
// blindly replayed.
const txRetries = 5

// RedisStore keeps live game state in redis: the game document as a JSON
// value, player documents in a per-room hash, a ZSET leaderboard view, and a
// per-room pub/sub channel carrying the full document on every committed
// write. Conditional updates ride redis WATCH transactions, so two writers
// racing on the same room resolve to exactly one committed mutation.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*redisSub]struct{}
}

type redisSub struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisStore creates a store on an existing redis client.
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger,
		subs:   make(map[*redisSub]struct{}),
	}
}

func gameKey(roomID string) string    { return fmt.Sprintf("game:%s", roomID) }
func playersKey(roomID string) string { return fmt.Sprintf("game:%s:players", roomID) }
func scoresKey(roomID string) string  { return fmt.Sprintf("game:%s:scores", roomID) }
func eventsKey(roomID string) string  { return fmt.Sprintf("game:%s:events", roomID) }

func (s *RedisStore) CreateGame(ctx context.Context, game *model.GameState) (bool, error) {
	data, err := json.Marshal(game)
	if err != nil {
		return false, err
	}
	created, err := s.client.SetNX(ctx, gameKey(game.ID), data, 0).Result()
	if err != nil {
		return false, fmt.Errorf("creating game %s: %w", game.ID, err)
	}
	return created, nil
}

func (s *RedisStore) GetGame(ctx context.Context, roomID string) (*model.GameState, error) {
	data, err := s.client.Get(ctx, gameKey(roomID)).Result()
	if err == redis.Nil {
		return nil, model.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading game %s: %w", roomID, err)
	}
	var game model.GameState
	if err := json.Unmarshal([]byte(data), &game); err != nil {
		return nil, fmt.Errorf("decoding game %s: %w", roomID, err)
	}
	return &game, nil
}

func (s *RedisStore) GetPlayer(ctx context.Context, roomID, playerID string) (*model.Player, error) {
	data, err := s.client.HGet(ctx, playersKey(roomID), playerID).Result()
	if err == redis.Nil {
		return nil, model.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading player %s: %w", playerID, err)
	}
	var player model.Player
	if err := json.Unmarshal([]byte(data), &player); err != nil {
		return nil, fmt.Errorf("decoding player %s: %w", playerID, err)
	}
	return &player, nil
}

func (s *RedisStore) GetPlayers(ctx context.Context, roomID string) ([]model.Player, error) {
	game, err := s.GetGame(ctx, roomID)
	if err != nil {
		return nil, err
	}
	docs, err := s.playerDocs(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return orderPlayers(game, docs), nil
}

func (s *RedisStore) playerDocs(ctx context.Context, roomID string) (map[string]*model.Player, error) {
	raw, err := s.client.HGetAll(ctx, playersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading players for %s: %w", roomID, err)
	}
	docs := make(map[string]*model.Player, len(raw))
	for id, blob := range raw {
		var p model.Player
		if err := json.Unmarshal([]byte(blob), &p); err != nil {
			s.logger.Warn("skipping undecodable player document", "room", roomID, "player", id, "error", err)
			continue
		}
		docs[id] = &p
	}
	return docs, nil
}

func (s *RedisStore) UpdateGame(ctx context.Context, roomID string, mutate func(*model.GameState) error) (*model.GameState, error) {
	return s.update(ctx, roomID, false, func(g *model.GameState, _ map[string]*model.Player) error {
		return mutate(g)
	})
}

func (s *RedisStore) UpdateGameAndPlayers(ctx context.Context, roomID string, mutate func(*model.GameState, map[string]*model.Player) error) (*model.GameState, error) {
	return s.update(ctx, roomID, true, mutate)
}

// update runs mutate inside a WATCH transaction over the room's keys. The
// commit fails if any watched key changed since the read, in which case the
// whole read-mutate-write cycle re-runs: first committed write wins, the
// retry sees the winner's state.
func (s *RedisStore) update(ctx context.Context, roomID string, withPlayers bool, mutate func(*model.GameState, map[string]*model.Player) error) (*model.GameState, error) {
	var committed *model.GameState

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, gameKey(roomID)).Result()
		if err == redis.Nil {
			return model.ErrGameNotFound
		}
		if err != nil {
			return err
		}
		var game model.GameState
		if err := json.Unmarshal([]byte(data), &game); err != nil {
			return fmt.Errorf("decoding game %s: %w", roomID, err)
		}

		players := map[string]*model.Player{}
		if withPlayers {
			raw, err := tx.HGetAll(ctx, playersKey(roomID)).Result()
			if err != nil {
				return err
			}
			for id, blob := range raw {
				var p model.Player
				if err := json.Unmarshal([]byte(blob), &p); err != nil {
					continue
				}
				players[id] = &p
			}
		}

		if err := mutate(&game, players); err != nil {
			if err == ErrUnchanged {
				committed = &game
				return nil
			}
			return err
		}

		gameBlob, err := json.Marshal(&game)
		if err != nil {
			return err
		}
		gameEvt, err := json.Marshal(event{Type: eventGame, Game: &game})
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, gameKey(roomID), gameBlob, 0)
			for id, score := range game.Scores {
				pipe.ZAdd(ctx, scoresKey(roomID), redis.Z{Score: float64(score), Member: id})
			}
			if withPlayers {
				for id, p := range players {
					blob, err := json.Marshal(p)
					if err != nil {
						return err
					}
					pipe.HSet(ctx, playersKey(roomID), id, blob)
				}
				evt, err := json.Marshal(event{Type: eventPlayers, Players: orderPlayers(&game, players)})
				if err != nil {
					return err
				}
				pipe.Publish(ctx, eventsKey(roomID), evt)
			}
			pipe.Publish(ctx, eventsKey(roomID), gameEvt)
			return nil
		})
		if err == nil {
			committed = &game
		}
		return err
	}

	keys := []string{gameKey(roomID)}
	if withPlayers {
		keys = append(keys, playersKey(roomID))
	}
	for i := 0; i < txRetries; i++ {
		err := s.client.Watch(ctx, txn, keys...)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return committed, nil
	}
	return nil, model.ErrWriteConflict
}

func (s *RedisStore) SubscribeGame(roomID string, fn func(*model.GameState)) (func(), error) {
	return s.subscribe(roomID, func(evt *event) {
		if evt.Type == eventGame && evt.Game != nil {
			fn(evt.Game)
		}
	})
}

func (s *RedisStore) SubscribePlayers(roomID string, fn func([]model.Player)) (func(), error) {
	return s.subscribe(roomID, func(evt *event) {
		if evt.Type == eventPlayers {
			fn(evt.Players)
		}
	})
}

func (s *RedisStore) subscribe(roomID string, deliver func(*event)) (func(), error) {
	pubsub := s.client.Subscribe(context.Background(), eventsKey(roomID))
	sub := &redisSub{pubsub: pubsub, done: make(chan struct{})}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					s.logger.Warn("dropping undecodable store event", "room", roomID, "error", err)
					continue
				}
				deliver(&evt)
			case <-sub.done:
				return
			}
		}
	}()

	unsub := func() {
		s.mu.Lock()
		if _, ok := s.subs[sub]; ok {
			delete(s.subs, sub)
			close(sub.done)
			_ = pubsub.Close()
		}
		s.mu.Unlock()
	}
	return unsub, nil
}

func (s *RedisStore) Scores(ctx context.Context, roomID string, limit int) ([]model.ScoreEntry, error) {
	game, err := s.GetGame(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = len(game.Players)
	}
	results, err := s.client.ZRevRangeWithScores(ctx, scoresKey(roomID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading scores for %s: %w", roomID, err)
	}
	entries := make([]model.ScoreEntry, 0, len(results))
	for i, z := range results {
		id, _ := z.Member.(string)
		entry := model.ScoreEntry{PlayerID: id, Score: int(z.Score), Rank: i + 1}
		if p := game.PlayerByID(id); p != nil {
			entry.Name = p.Name
			entry.Subject = p.Subject
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	for sub := range s.subs {
		close(sub.done)
		_ = sub.pubsub.Close()
		delete(s.subs, sub)
	}
	s.mu.Unlock()
	return nil
}
