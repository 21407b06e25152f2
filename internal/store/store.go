package store

import (
	"context"
	"errors"

	"buzzhost/internal/model"
)

// ErrUnchanged can be returned by a mutator to abort a read-modify-write
// without treating it as a failure: nothing is written, nothing is published,
// and the update call returns the untouched state.
var ErrUnchanged = errors.New("state unchanged")

// GameStore is the document store backing live game state: point reads,
// atomic read-modify-write of the game document, atomic batch updates that
// touch the game document and player documents together, and push
// subscriptions that deliver the full current document on every committed
// write.
//
// Mutators run against a private copy of the current state. Returning an
// error (other than ErrUnchanged) aborts the write and surfaces the error,
// which is how command preconditions stay race-free: the check and the write
// commit together or not at all.
type GameStore interface {
	// CreateGame installs a game document if none exists for its room id.
	// Reports whether a document was created; an existing document is left
	// untouched.
	CreateGame(ctx context.Context, game *model.GameState) (bool, error)

	GetGame(ctx context.Context, roomID string) (*model.GameState, error)
	GetPlayer(ctx context.Context, roomID, playerID string) (*model.Player, error)
	// GetPlayers returns all player documents in the game's join order.
	GetPlayers(ctx context.Context, roomID string) ([]model.Player, error)

	// UpdateGame atomically applies mutate to the game document and returns
	// the committed state. A concurrent write between read and commit
	// re-runs the mutator against the fresh state.
	UpdateGame(ctx context.Context, roomID string, mutate func(*model.GameState) error) (*model.GameState, error)

	// UpdateGameAndPlayers is UpdateGame extended to the room's player
	// documents. The players map is keyed by player id; entries added by the
	// mutator become new player documents. Game and player writes commit as
	// one batch.
	UpdateGameAndPlayers(ctx context.Context, roomID string, mutate func(*model.GameState, map[string]*model.Player) error) (*model.GameState, error)

	// SubscribeGame registers fn for the full game document on every change.
	// The returned function cancels the subscription.
	SubscribeGame(roomID string, fn func(*model.GameState)) (func(), error)
	// SubscribePlayers registers fn for the full player list on every change
	// to any player document in the room.
	SubscribePlayers(roomID string, fn func([]model.Player)) (func(), error)

	// Scores returns the room's leaderboard view, highest score first.
	Scores(ctx context.Context, roomID string, limit int) ([]model.ScoreEntry, error)

	Close() error
}

// event is the fan-out envelope published on every committed write.
type event struct {
	Type    string           `json:"type"` // "game" or "players"
	Game    *model.GameState `json:"game,omitempty"`
	Players []model.Player   `json:"players,omitempty"`
}

const (
	eventGame    = "game"
	eventPlayers = "players"
)

// orderPlayers arranges player documents in the game's join order. Documents
// missing from the game's player list (mid-join) are appended at the end.
func orderPlayers(game *model.GameState, docs map[string]*model.Player) []model.Player {
	out := make([]model.Player, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	if game != nil {
		for _, p := range game.Players {
			if doc, ok := docs[p.ID]; ok {
				out = append(out, *doc)
				seen[p.ID] = true
			}
		}
	}
	for id, doc := range docs {
		if !seen[id] {
			out = append(out, *doc)
		}
	}
	return out
}

// scoresView builds the sorted leaderboard from the authoritative scores map.
func scoresView(game *model.GameState, limit int) []model.ScoreEntry {
	entries := make([]model.ScoreEntry, 0, len(game.Players))
	for _, p := range game.Players {
		entries = append(entries, model.ScoreEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Subject:  p.Subject,
			Score:    game.Scores[p.ID],
		})
	}
	// Insertion sort keeps join order stable between equal scores.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Score > entries[j-1].Score; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
