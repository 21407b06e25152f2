package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"buzzhost/internal/config"
	"buzzhost/internal/model"
	"buzzhost/internal/repository"
	"buzzhost/internal/store"
)

// GameService is the game engine. Every command is a read-modify-write
// pushed through the store's atomic update facility, so preconditions are
// checked against the same state the write commits on.
type GameService struct {
	store     store.GameStore
	games     repository.GameRepo
	players   repository.PlayerRepo
	questions QuestionSource
	logger    *slog.Logger

	now   func() time.Time
	newID func() string

	timePerQuestion    int
	questionsPerPlayer int
}

// NewGameService creates the game engine
func NewGameService(st store.GameStore, games repository.GameRepo, players repository.PlayerRepo,
	questions QuestionSource, cfg *config.Config, logger *slog.Logger) *GameService {
	return &GameService{
		store:              st,
		games:              games,
		players:            players,
		questions:          questions,
		logger:             logger,
		now:                time.Now,
		newID:              func() string { return "p_" + uuid.New().String()[:8] },
		timePerQuestion:    cfg.Game.TimePerQuestionSec,
		questionsPerPlayer: cfg.Questions.PerPlayer,
	}
}

// CreateRoom ensures a game document exists for the room. Existing rooms are
// left untouched.
func (s *GameService) CreateRoom(ctx context.Context, roomID string) error {
	created, err := s.store.CreateGame(ctx, model.NewGameState(roomID, s.now().UTC().Format(time.RFC3339)))
	if err != nil {
		return fmt.Errorf("creating room %s: %w", roomID, err)
	}
	if created {
		s.logger.Info("room created", "room", roomID)
	}
	return nil
}

// AddPlayer joins a player to the room. A player with the same name and
// subject is treated as a reconnect: presence is refreshed and the existing
// identity returned, no new questions are generated.
func (s *GameService) AddPlayer(ctx context.Context, roomID, name, subject string) (*model.Player, bool, *model.GameState, error) {
	current, err := s.store.GetGame(ctx, roomID)
	if err != nil {
		return nil, false, nil, err
	}

	var questions []model.Question
	if findPlayer(current, name, subject) == nil {
		// Generation is slow and external, so it happens outside the
		// atomic update. It never fails: the source degrades to local
		// placeholder questions.
		questions = s.questions.Generate(ctx, subject, s.questionsPerPlayer)
	}

	var joined model.Player
	rejoined := false
	newID := s.newID()

	state, err := s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		// Re-check under the atomic update in case an identical join
		// committed between our read and now
		if existing := findPlayer(g, name, subject); existing != nil {
			rejoined = true
			existing.IsOnline = true
			existing.LastSeen = s.now().UTC()
			if doc, ok := docs[existing.ID]; ok {
				doc.IsOnline = true
				doc.LastSeen = existing.LastSeen
			}
			joined = *existing
			return nil
		}

		player := model.Player{
			ID:        newID,
			GameID:    roomID,
			Name:      name,
			Subject:   subject,
			IsOnline:  true,
			LastSeen:  s.now().UTC(),
			Questions: questions,
		}
		g.Players = append(g.Players, player)
		if g.Scores == nil {
			g.Scores = map[string]int{}
		}
		g.Scores[player.ID] = 0
		docs[player.ID] = &player
		joined = player
		return nil
	})
	if err != nil {
		return nil, false, nil, err
	}

	if !rejoined {
		s.archive(ctx, state)
	}
	return &joined, rejoined, state, nil
}

// StartGame moves a waiting room with at least one player into play and
// installs the first question.
func (s *GameService) StartGame(ctx context.Context, roomID string) (*model.GameState, error) {
	state, err := s.store.UpdateGame(ctx, roomID, func(g *model.GameState) error {
		if g.Status != model.StatusWaiting {
			return fmt.Errorf("start from %s: %w", g.Status, model.ErrInvalidState)
		}
		if len(g.Players) == 0 {
			return fmt.Errorf("start with no players: %w", model.ErrInvalidState)
		}
		g.Status = model.StatusInProgress
		g.CurrentPlayerIndex = 0
		g.CurrentQuestionIndex = -1
		s.advance(g)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.archive(ctx, state)
	return state, nil
}

// Buzz claims the current question for a player. The first committed buzz
// wins; a buzz that finds the question already claimed fails with a write
// conflict.
func (s *GameService) Buzz(ctx context.Context, roomID, playerID string) (*model.GameState, error) {
	return s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		q := g.CurrentQuestion
		if g.Status != model.StatusInProgress || q == nil {
			return fmt.Errorf("buzz outside play: %w", model.ErrInvalidState)
		}
		if q.BuzzedPlayerID != "" {
			return fmt.Errorf("question already claimed by %s: %w", q.BuzzedPlayerID, model.ErrWriteConflict)
		}
		doc, ok := docs[playerID]
		if !ok {
			return fmt.Errorf("player %s: %w", playerID, model.ErrPlayerNotFound)
		}
		if doc.HasBuzzed {
			return fmt.Errorf("player %s already buzzed this question: %w", playerID, model.ErrInvalidState)
		}

		q.BuzzedPlayerID = playerID
		q.AnswerStatus = model.AnswerPending
		doc.Buzzed = true
		doc.HasBuzzed = true
		if embedded := g.PlayerByID(playerID); embedded != nil {
			embedded.Buzzed = true
			embedded.HasBuzzed = true
		}
		return nil
	})
}

// JudgeAnswer records the host's verdict on a pending buzz, applies scoring
// and clears every player's buzz flags in the same batch. It does not advance
// the question.
func (s *GameService) JudgeAnswer(ctx context.Context, roomID string, verdict model.AnswerStatus, stealPlayerID string) (*model.GameState, error) {
	switch verdict {
	case model.AnswerCorrect, model.AnswerIncorrect, model.AnswerSteal:
	default:
		return nil, fmt.Errorf("verdict %q: %w", verdict, model.ErrInvalidState)
	}

	state, err := s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		q := g.CurrentQuestion
		if !q.BuzzPending() {
			return fmt.Errorf("no buzz to judge: %w", model.ErrInvalidState)
		}

		switch verdict {
		case model.AnswerCorrect:
			g.Scores[q.BuzzedPlayerID] += 10
		case model.AnswerIncorrect:
			g.Scores[q.BuzzedPlayerID] -= 10
		case model.AnswerSteal:
			if stealPlayerID == "" {
				return fmt.Errorf("steal without a stealing player: %w", model.ErrInvalidState)
			}
			if _, ok := docs[stealPlayerID]; !ok {
				return fmt.Errorf("steal player %s: %w", stealPlayerID, model.ErrPlayerNotFound)
			}
			g.Scores[stealPlayerID] += 15
			q.StealPlayerID = stealPlayerID
		}
		q.AnswerStatus = verdict

		resetBuzzFlags(g, docs)
		syncScores(g, docs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.archive(ctx, state)
	return state, nil
}

// NextQuestion advances play to the next question, moving to the next player
// when the current player's list is exhausted and ending the game when the
// player list is exhausted. On a finished game it is a no-op.
func (s *GameService) NextQuestion(ctx context.Context, roomID string) (*model.GameState, error) {
	state, err := s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		if g.Status == model.StatusFinished {
			return store.ErrUnchanged
		}
		if g.Status != model.StatusInProgress || g.CurrentQuestion == nil {
			return fmt.Errorf("advance outside play: %w", model.ErrInvalidState)
		}
		s.advance(g)
		resetBuzzFlags(g, docs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if state.Status == model.StatusFinished {
		s.archive(ctx, state)
	}
	return state, nil
}

// Tick decrements the question clock by one second. It is a no-op while a
// buzz is pending or outside play; a tick that would drop the clock to zero
// advances the question instead of writing a negative value.
func (s *GameService) Tick(ctx context.Context, roomID string) (*model.GameState, error) {
	finished := false
	state, err := s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		finished = false
		q := g.CurrentQuestion
		if g.Status != model.StatusInProgress || q == nil {
			return store.ErrUnchanged
		}
		if q.BuzzPending() {
			return store.ErrUnchanged
		}
		if q.TimeRemaining <= 1 {
			s.advance(g)
			resetBuzzFlags(g, docs)
			finished = g.Status == model.StatusFinished
			return nil
		}
		q.TimeRemaining--
		return nil
	})
	if err != nil {
		return nil, err
	}
	if finished {
		s.archive(ctx, state)
	}
	return state, nil
}

// ResetBuzzers clears every player's buzzed flag. Host manual override; it
// does not touch hasBuzzed or scoring.
func (s *GameService) ResetBuzzers(ctx context.Context, roomID string) (*model.GameState, error) {
	return s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		for i := range g.Players {
			g.Players[i].Buzzed = false
		}
		for _, doc := range docs {
			doc.Buzzed = false
		}
		return nil
	})
}

// RestartGame returns the room to the waiting state with zeroed scores and
// cleared buzz flags. Players and their question lists are kept.
func (s *GameService) RestartGame(ctx context.Context, roomID string) (*model.GameState, error) {
	state, err := s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		g.Status = model.StatusWaiting
		g.IsActive = true
		g.CurrentQuestion = nil
		g.CurrentPlayerIndex = 0
		g.CurrentQuestionIndex = 0
		for id := range g.Scores {
			g.Scores[id] = 0
		}
		resetBuzzFlags(g, docs)
		syncScores(g, docs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.archive(ctx, state)
	return state, nil
}

// SetPlayerOnline updates a player's presence
func (s *GameService) SetPlayerOnline(ctx context.Context, roomID, playerID string, online bool) error {
	_, err := s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		doc, ok := docs[playerID]
		if !ok {
			return fmt.Errorf("player %s: %w", playerID, model.ErrPlayerNotFound)
		}
		doc.IsOnline = online
		doc.LastSeen = s.now().UTC()
		if embedded := g.PlayerByID(playerID); embedded != nil {
			embedded.IsOnline = online
			embedded.LastSeen = doc.LastSeen
		}
		return nil
	})
	return err
}

// EnsurePlayerInGame repairs a game document that is missing an entry for an
// existing player document. No-op when the player is already listed.
func (s *GameService) EnsurePlayerInGame(ctx context.Context, roomID, playerID string) error {
	_, err := s.store.UpdateGameAndPlayers(ctx, roomID, func(g *model.GameState, docs map[string]*model.Player) error {
		doc, ok := docs[playerID]
		if !ok {
			return fmt.Errorf("player %s: %w", playerID, model.ErrPlayerNotFound)
		}
		if g.PlayerByID(playerID) != nil {
			return store.ErrUnchanged
		}
		g.Players = append(g.Players, *doc)
		if g.Scores == nil {
			g.Scores = map[string]int{}
		}
		if _, ok := g.Scores[playerID]; !ok {
			g.Scores[playerID] = doc.Score
		}
		return nil
	})
	return err
}

// Snapshot returns the current game document
func (s *GameService) Snapshot(ctx context.Context, roomID string) (*model.GameState, error) {
	return s.store.GetGame(ctx, roomID)
}

// Players returns the room's player documents in join order
func (s *GameService) Players(ctx context.Context, roomID string) ([]model.Player, error) {
	return s.store.GetPlayers(ctx, roomID)
}

// Scores returns the room's leaderboard, highest score first
func (s *GameService) Scores(ctx context.Context, roomID string, limit int) ([]model.ScoreEntry, error) {
	return s.store.Scores(ctx, roomID, limit)
}

// advance installs the next (player, question) pair, or ends the game when
// the current player index overflows the player list. Players whose question
// list is exhausted (or empty) are skipped.
func (s *GameService) advance(g *model.GameState) {
	pi := int(g.CurrentPlayerIndex)
	qi := g.CurrentQuestionIndex + 1
	for pi < len(g.Players) && qi >= len(g.Players[pi].Questions) {
		pi++
		qi = 0
	}
	if pi >= len(g.Players) {
		g.Status = model.StatusFinished
		g.CurrentQuestion = nil
		return
	}

	p := &g.Players[pi]
	g.CurrentPlayerIndex = model.PlayerIndex(pi)
	g.CurrentQuestionIndex = qi
	g.CurrentQuestion = &model.CurrentQuestion{
		Question:      p.Questions[qi].Question,
		Answer:        p.Questions[qi].Answer,
		PlayerID:      p.ID,
		TimeRemaining: s.timePerQuestion,
	}
}

// archive writes the committed state through to the long-term database.
// Best effort: archive failures are logged, never surfaced to the command.
func (s *GameService) archive(ctx context.Context, game *model.GameState) {
	if s.games == nil {
		return
	}
	if err := s.games.Upsert(ctx, game); err != nil {
		s.logger.Warn("archiving game failed", "room", game.ID, "error", err)
		return
	}
	if s.players == nil {
		return
	}
	for i := range game.Players {
		p := game.Players[i]
		p.Score = game.Scores[p.ID]
		if err := s.players.Upsert(ctx, &p); err != nil {
			s.logger.Warn("archiving player failed", "room", game.ID, "player", p.ID, "error", err)
		}
	}
}

func findPlayer(g *model.GameState, name, subject string) *model.Player {
	for i := range g.Players {
		if g.Players[i].Name == name && g.Players[i].Subject == subject {
			return &g.Players[i]
		}
	}
	return nil
}

func resetBuzzFlags(g *model.GameState, docs map[string]*model.Player) {
	for i := range g.Players {
		g.Players[i].Buzzed = false
		g.Players[i].HasBuzzed = false
	}
	for _, doc := range docs {
		doc.Buzzed = false
		doc.HasBuzzed = false
	}
}

func syncScores(g *model.GameState, docs map[string]*model.Player) {
	for i := range g.Players {
		g.Players[i].Score = g.Scores[g.Players[i].ID]
	}
	for id, doc := range docs {
		doc.Score = g.Scores[id]
	}
}
