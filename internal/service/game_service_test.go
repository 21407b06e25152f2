package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"buzzhost/internal/config"
	"buzzhost/internal/model"
	"buzzhost/internal/store"
)

type stubSource struct{}

func (stubSource) Generate(_ context.Context, subject string, count int) []model.Question {
	qs := make([]model.Question, count)
	for i := range qs {
		qs[i] = model.Question{
			Question: fmt.Sprintf("%s question %d", subject, i+1),
			Answer:   fmt.Sprintf("%s answer %d", subject, i+1),
		}
	}
	return qs
}

func newTestEngine(t *testing.T) *GameService {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Questions.PerPlayer = 2

	eng := NewGameService(store.NewMemoryStore(), nil, nil, stubSource{}, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	eng.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	n := 0
	eng.newID = func() string {
		n++
		return fmt.Sprintf("p_%d", n)
	}
	return eng
}

func mustJoin(t *testing.T, eng *GameService, roomID, name, subject string) *model.Player {
	t.Helper()
	p, _, _, err := eng.AddPlayer(context.Background(), roomID, name, subject)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return p
}

func TestAddPlayerRoomNotFound(t *testing.T) {
	eng := newTestEngine(t)
	_, _, _, err := eng.AddPlayer(context.Background(), "missing", "ada", "math")
	if !errors.Is(err, model.ErrGameNotFound) {
		t.Fatalf("err = %v, want ErrGameNotFound", err)
	}
}

func TestAddPlayerAndReconnect(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")

	p1, rejoined, game, err := eng.AddPlayer(ctx, "r1", "ada", "math")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if rejoined {
		t.Fatal("first join reported as reconnect")
	}
	if len(p1.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(p1.Questions))
	}
	if len(game.Players) != 1 || game.Scores[p1.ID] != 0 {
		t.Fatalf("game after join: players=%d scores=%v", len(game.Players), game.Scores)
	}

	// Same name and subject is a reconnect, not a new player
	p2, rejoined, game, err := eng.AddPlayer(ctx, "r1", "ada", "math")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !rejoined {
		t.Fatal("identical join not treated as reconnect")
	}
	if p2.ID != p1.ID {
		t.Fatalf("reconnect returned new id %s, want %s", p2.ID, p1.ID)
	}
	if len(game.Players) != 1 {
		t.Fatalf("reconnect duplicated player: %d", len(game.Players))
	}
	if !p2.IsOnline {
		t.Fatal("reconnect should refresh presence")
	}

	// Same name, different subject is a distinct player
	p3, rejoined, game, err := eng.AddPlayer(ctx, "r1", "ada", "film")
	if err != nil {
		t.Fatalf("second player: %v", err)
	}
	if rejoined || p3.ID == p1.ID {
		t.Fatalf("distinct player collapsed into %s", p3.ID)
	}
	if len(game.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(game.Players))
	}
}

func TestStartGame(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")

	if _, err := eng.StartGame(ctx, "r1"); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("start with no players: err = %v, want ErrInvalidState", err)
	}

	p := mustJoin(t, eng, "r1", "ada", "math")

	game, err := eng.StartGame(ctx, "r1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if game.Status != model.StatusInProgress {
		t.Fatalf("status = %q", game.Status)
	}
	if game.CurrentPlayerIndex != 0 || game.CurrentQuestionIndex != 0 {
		t.Fatalf("indices = %d/%d", game.CurrentPlayerIndex, game.CurrentQuestionIndex)
	}
	q := game.CurrentQuestion
	if q == nil || q.PlayerID != p.ID || q.Question != "math question 1" {
		t.Fatalf("current question = %+v", q)
	}
	if q.TimeRemaining != 30 {
		t.Fatalf("timeRemaining = %d, want 30", q.TimeRemaining)
	}
	if q.BuzzedPlayerID != "" || q.AnswerStatus != "" {
		t.Fatalf("buzz fields not clear: %+v", q)
	}

	if _, err := eng.StartGame(ctx, "r1"); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("double start: err = %v, want ErrInvalidState", err)
	}
}

func TestBuzzSingleWinner(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")
	p2 := mustJoin(t, eng, "r1", "bob", "film")

	if _, err := eng.Buzz(ctx, "r1", p1.ID); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("buzz before start: err = %v, want ErrInvalidState", err)
	}

	eng.StartGame(ctx, "r1")

	game, err := eng.Buzz(ctx, "r1", p1.ID)
	if err != nil {
		t.Fatalf("buzz: %v", err)
	}
	q := game.CurrentQuestion
	if q.BuzzedPlayerID != p1.ID || q.AnswerStatus != model.AnswerPending {
		t.Fatalf("buzz not recorded: %+v", q)
	}
	winner := game.PlayerByID(p1.ID)
	if !winner.Buzzed || !winner.HasBuzzed {
		t.Fatalf("winner flags = %+v", winner)
	}

	// Second buzz loses the race
	if _, err := eng.Buzz(ctx, "r1", p2.ID); !errors.Is(err, model.ErrWriteConflict) {
		t.Fatalf("losing buzz: err = %v, want ErrWriteConflict", err)
	}

	if _, err := eng.Buzz(ctx, "r1", "p_nope"); !errors.Is(err, model.ErrWriteConflict) {
		// Claimed question wins over unknown player; both map to conflict
		t.Fatalf("unknown player buzz: err = %v", err)
	}
}

func TestJudgeAnswerScoring(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")
	p2 := mustJoin(t, eng, "r1", "bob", "film")
	eng.StartGame(ctx, "r1")

	if _, err := eng.JudgeAnswer(ctx, "r1", model.AnswerCorrect, ""); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("judge without buzz: err = %v, want ErrInvalidState", err)
	}

	// Correct: +10
	eng.Buzz(ctx, "r1", p1.ID)
	game, err := eng.JudgeAnswer(ctx, "r1", model.AnswerCorrect, "")
	if err != nil {
		t.Fatalf("judge correct: %v", err)
	}
	if game.Scores[p1.ID] != 10 {
		t.Fatalf("score after correct = %d, want 10", game.Scores[p1.ID])
	}
	if game.CurrentQuestion.AnswerStatus != model.AnswerCorrect {
		t.Fatalf("answerStatus = %q", game.CurrentQuestion.AnswerStatus)
	}
	for _, p := range game.Players {
		if p.Buzzed || p.HasBuzzed {
			t.Fatalf("buzz flags not cleared for %s", p.ID)
		}
	}

	// Incorrect: -10
	eng.NextQuestion(ctx, "r1")
	eng.Buzz(ctx, "r1", p1.ID)
	game, err = eng.JudgeAnswer(ctx, "r1", model.AnswerIncorrect, "")
	if err != nil {
		t.Fatalf("judge incorrect: %v", err)
	}
	if game.Scores[p1.ID] != 0 {
		t.Fatalf("score after incorrect = %d, want 0", game.Scores[p1.ID])
	}

	// Steal: +15 to the stealing player, buzzer untouched
	eng.NextQuestion(ctx, "r1")
	eng.Buzz(ctx, "r1", p1.ID)
	if _, err := eng.JudgeAnswer(ctx, "r1", model.AnswerSteal, ""); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("steal without steal player: err = %v, want ErrInvalidState", err)
	}
	if _, err := eng.JudgeAnswer(ctx, "r1", model.AnswerSteal, "p_nope"); !errors.Is(err, model.ErrPlayerNotFound) {
		t.Fatalf("steal to unknown player: err = %v, want ErrPlayerNotFound", err)
	}
	game, err = eng.JudgeAnswer(ctx, "r1", model.AnswerSteal, p2.ID)
	if err != nil {
		t.Fatalf("judge steal: %v", err)
	}
	if game.Scores[p2.ID] != 15 {
		t.Fatalf("steal score = %d, want 15", game.Scores[p2.ID])
	}
	if game.Scores[p1.ID] != 0 {
		t.Fatalf("buzzer penalized on steal: %d", game.Scores[p1.ID])
	}
	if game.CurrentQuestion.StealPlayerID != p2.ID {
		t.Fatalf("stealPlayerId = %q", game.CurrentQuestion.StealPlayerID)
	}

	if _, err := eng.JudgeAnswer(ctx, "r1", model.AnswerStatus("bogus"), ""); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("bogus verdict: err = %v, want ErrInvalidState", err)
	}
}

func TestNextQuestionWalksPlayersThenFinishes(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")
	p2 := mustJoin(t, eng, "r1", "bob", "film")

	game, _ := eng.StartGame(ctx, "r1")

	want := []struct {
		playerID string
		question string
	}{
		{p1.ID, "math question 1"},
		{p1.ID, "math question 2"},
		{p2.ID, "film question 1"},
		{p2.ID, "film question 2"},
	}
	for i, w := range want {
		q := game.CurrentQuestion
		if q == nil || q.PlayerID != w.playerID || q.Question != w.question {
			t.Fatalf("step %d: question = %+v, want %+v", i, q, w)
		}
		var err error
		game, err = eng.NextQuestion(ctx, "r1")
		if err != nil {
			t.Fatalf("step %d next: %v", i, err)
		}
	}

	if game.Status != model.StatusFinished {
		t.Fatalf("status after exhaustion = %q", game.Status)
	}
	if game.CurrentQuestion != nil {
		t.Fatalf("finished game still has question: %+v", game.CurrentQuestion)
	}

	// Advancing a finished game is a no-op
	game, err := eng.NextQuestion(ctx, "r1")
	if err != nil {
		t.Fatalf("next on finished: %v", err)
	}
	if game.Status != model.StatusFinished {
		t.Fatalf("finished status changed to %q", game.Status)
	}
}

func TestTick(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")

	// Outside play the tick is absorbed
	game, err := eng.Tick(ctx, "r1")
	if err != nil {
		t.Fatalf("tick while waiting: %v", err)
	}
	if game.Status != model.StatusWaiting {
		t.Fatalf("tick changed status to %q", game.Status)
	}

	eng.StartGame(ctx, "r1")

	game, err = eng.Tick(ctx, "r1")
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if game.CurrentQuestion.TimeRemaining != 29 {
		t.Fatalf("timeRemaining = %d, want 29", game.CurrentQuestion.TimeRemaining)
	}

	// Frozen while a buzz is pending
	eng.Buzz(ctx, "r1", p1.ID)
	game, err = eng.Tick(ctx, "r1")
	if err != nil {
		t.Fatalf("tick with pending buzz: %v", err)
	}
	if game.CurrentQuestion.TimeRemaining != 29 {
		t.Fatalf("pending buzz did not freeze clock: %d", game.CurrentQuestion.TimeRemaining)
	}

	eng.JudgeAnswer(ctx, "r1", model.AnswerIncorrect, "")

	// Expiry advances instead of writing zero
	_, err = eng.store.UpdateGame(ctx, "r1", func(g *model.GameState) error {
		g.CurrentQuestion.TimeRemaining = 1
		return nil
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	game, err = eng.Tick(ctx, "r1")
	if err != nil {
		t.Fatalf("expiring tick: %v", err)
	}
	if game.CurrentQuestionIndex != 1 {
		t.Fatalf("expiry did not advance: index %d", game.CurrentQuestionIndex)
	}
	if game.CurrentQuestion.TimeRemaining != 30 {
		t.Fatalf("new question clock = %d, want 30", game.CurrentQuestion.TimeRemaining)
	}
}

type memGameRepo struct {
	games map[string]model.GameState
}

func (r *memGameRepo) Upsert(_ context.Context, game *model.GameState) error {
	if r.games == nil {
		r.games = map[string]model.GameState{}
	}
	r.games[game.ID] = *game
	return nil
}

func (r *memGameRepo) GetByID(_ context.Context, roomID string) (*model.GameState, error) {
	g, ok := r.games[roomID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func TestTickExpiryFinishArchives(t *testing.T) {
	eng := newTestEngine(t)
	archive := &memGameRepo{}
	eng.games = archive
	eng.timePerQuestion = 2

	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	mustJoin(t, eng, "r1", "ada", "math")
	eng.StartGame(ctx, "r1")

	// Two questions at two seconds each: run the clock down on both
	for i := 0; i < 3; i++ {
		if _, err := eng.Tick(ctx, "r1"); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if got := archive.games["r1"].Status; got != model.StatusInProgress {
		t.Fatalf("mid-game ticks archived status %q", got)
	}

	game, err := eng.Tick(ctx, "r1")
	if err != nil {
		t.Fatalf("final tick: %v", err)
	}
	if game.Status != model.StatusFinished {
		t.Fatalf("status = %q, want finished", game.Status)
	}
	stored, err := archive.GetByID(ctx, "r1")
	if err != nil || stored == nil {
		t.Fatalf("archived game: %v, %v", stored, err)
	}
	if stored.Status != model.StatusFinished {
		t.Fatalf("archived status = %q, want finished", stored.Status)
	}
}

func TestResetBuzzers(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")
	eng.StartGame(ctx, "r1")
	eng.Buzz(ctx, "r1", p1.ID)

	game, err := eng.ResetBuzzers(ctx, "r1")
	if err != nil {
		t.Fatalf("reset buzzers: %v", err)
	}
	p := game.PlayerByID(p1.ID)
	if p.Buzzed {
		t.Fatal("buzzed not cleared")
	}
	if !p.HasBuzzed {
		t.Fatal("reset buzzers must not touch hasBuzzed")
	}
}

func TestRestartGame(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")
	p2 := mustJoin(t, eng, "r1", "bob", "film")
	eng.StartGame(ctx, "r1")
	eng.Buzz(ctx, "r1", p1.ID)
	eng.JudgeAnswer(ctx, "r1", model.AnswerCorrect, "")

	game, err := eng.RestartGame(ctx, "r1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if game.Status != model.StatusWaiting {
		t.Fatalf("status = %q, want waiting", game.Status)
	}
	if game.CurrentQuestion != nil || game.CurrentPlayerIndex != 0 || game.CurrentQuestionIndex != 0 {
		t.Fatalf("restart left play state: %+v", game)
	}
	for _, id := range []string{p1.ID, p2.ID} {
		if game.Scores[id] != 0 {
			t.Fatalf("score for %s = %d after restart", id, game.Scores[id])
		}
	}
	// Questions and player roster survive
	if len(game.Players) != 2 || len(game.Players[0].Questions) != 2 {
		t.Fatalf("restart dropped players or questions")
	}

	// Restart is repeatable and the game can be started again
	if _, err := eng.RestartGame(ctx, "r1"); err != nil {
		t.Fatalf("second restart: %v", err)
	}
	if _, err := eng.StartGame(ctx, "r1"); err != nil {
		t.Fatalf("start after restart: %v", err)
	}
}

func TestSetPlayerOnline(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")

	if err := eng.SetPlayerOnline(ctx, "r1", p1.ID, false); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	doc, _ := eng.store.GetPlayer(ctx, "r1", p1.ID)
	if doc.IsOnline {
		t.Fatal("player still online")
	}

	if err := eng.SetPlayerOnline(ctx, "r1", "p_nope", true); !errors.Is(err, model.ErrPlayerNotFound) {
		t.Fatalf("unknown player: err = %v, want ErrPlayerNotFound", err)
	}
}

func TestEnsurePlayerInGame(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")

	// Strip the player from the game document to simulate a torn write
	eng.store.UpdateGame(ctx, "r1", func(g *model.GameState) error {
		g.Players = nil
		delete(g.Scores, p1.ID)
		return nil
	})

	if err := eng.EnsurePlayerInGame(ctx, "r1", p1.ID); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	game, _ := eng.Snapshot(ctx, "r1")
	if game.PlayerByID(p1.ID) == nil {
		t.Fatal("player not restored to game document")
	}
	if _, ok := game.Scores[p1.ID]; !ok {
		t.Fatal("score entry not restored")
	}

	// Already-listed player is a no-op
	if err := eng.EnsurePlayerInGame(ctx, "r1", p1.ID); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
}

func TestFullRound(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	eng.CreateRoom(ctx, "r1")
	p1 := mustJoin(t, eng, "r1", "ada", "math")
	p2 := mustJoin(t, eng, "r1", "bob", "film")

	eng.StartGame(ctx, "r1")

	// q1: ada answers her own subject correctly
	eng.Buzz(ctx, "r1", p1.ID)
	eng.JudgeAnswer(ctx, "r1", model.AnswerCorrect, "")
	eng.NextQuestion(ctx, "r1")

	// q2: bob buzzes in wrong, ada steals
	eng.Buzz(ctx, "r1", p2.ID)
	eng.JudgeAnswer(ctx, "r1", model.AnswerSteal, p1.ID)
	eng.NextQuestion(ctx, "r1")

	// q3: bob answers incorrectly
	eng.Buzz(ctx, "r1", p2.ID)
	eng.JudgeAnswer(ctx, "r1", model.AnswerIncorrect, "")
	eng.NextQuestion(ctx, "r1")

	// q4: nobody buzzes, clock runs out
	eng.store.UpdateGame(ctx, "r1", func(g *model.GameState) error {
		g.CurrentQuestion.TimeRemaining = 1
		return nil
	})
	game, err := eng.Tick(ctx, "r1")
	if err != nil {
		t.Fatalf("final tick: %v", err)
	}

	if game.Status != model.StatusFinished {
		t.Fatalf("status = %q, want finished", game.Status)
	}
	if game.Scores[p1.ID] != 25 {
		t.Fatalf("ada score = %d, want 25", game.Scores[p1.ID])
	}
	if game.Scores[p2.ID] != -10 {
		t.Fatalf("bob score = %d, want -10", game.Scores[p2.ID])
	}

	entries, err := eng.Scores(ctx, "r1", 0)
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if entries[0].PlayerID != p1.ID || entries[0].Rank != 1 {
		t.Fatalf("leaderboard top = %+v", entries[0])
	}
}
