package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"buzzhost/internal/config"
	"buzzhost/internal/model"
	"buzzhost/internal/service"
	"buzzhost/internal/store"
	"buzzhost/internal/transport/ws"
)

type testEnv struct {
	srv    *httptest.Server
	engine *service.GameService
	auth   *service.AuthService
}

func newTestEnv(t *testing.T, chatURL string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DefaultConfig()
	cfg.Questions.PerPlayer = 2
	cfg.Questions.TimeoutMS = 200
	cfg.Questions.TriviaURL = "http://127.0.0.1:0"
	if chatURL != "" {
		cfg.Questions.APIKey = "test-key"
		cfg.Questions.Endpoint = chatURL
	} else {
		cfg.Questions.APIKey = ""
	}

	st := store.NewMemoryStore()
	authSvc := service.NewAuthService(cfg.Auth)
	questionSvc := service.NewQuestionService(cfg.Questions, logger)
	engine := service.NewGameService(st, nil, nil, questionSvc, cfg, logger)

	if err := engine.CreateRoom(context.Background(), "r1"); err != nil {
		t.Fatalf("create room: %v", err)
	}

	router := NewRouter(&Container{
		AuthService:     authSvc,
		GameService:     engine,
		QuestionService: questionSvc,
		WSHub:           ws.NewHub(st, logger),
		Logger:          logger,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, engine: engine, auth: authSvc}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	fields := map[string]json.RawMessage{}
	json.NewDecoder(resp.Body).Decode(&fields)
	return resp, fields
}

func (e *testEnv) hostToken(t *testing.T) string {
	t.Helper()
	resp, err := e.auth.Login("admin", "password123")
	if err != nil {
		t.Fatalf("host login: %v", err)
	}
	return resp.Token
}

func (e *testEnv) join(t *testing.T, name, subject string) (playerID, token string) {
	t.Helper()
	resp, fields := e.request(t, "POST", "/v1/rooms/r1/join", "", map[string]string{
		"name": name, "subject": subject,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join %s: status %d", name, resp.StatusCode)
	}
	var join model.JoinResponse
	raw, _ := json.Marshal(fields)
	json.Unmarshal(raw, &join)
	if join.PlayerID == "" || join.Token == "" {
		t.Fatalf("join response missing identity: %+v", fields)
	}
	return join.PlayerID, join.Token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	resp, _ := env.request(t, "GET", "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, "")

	resp, fields := env.request(t, "POST", "/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(fields["token"]) == "" {
		t.Fatal("no token in response")
	}

	resp, _ = env.request(t, "POST", "/v1/auth/login", "", map[string]string{
		"username": "admin", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credentials: status = %d", resp.StatusCode)
	}
}

func TestJoinValidation(t *testing.T) {
	env := newTestEnv(t, "")

	resp, _ := env.request(t, "POST", "/v1/rooms/r1/join", "", map[string]string{"subject": "math"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing name: status = %d", resp.StatusCode)
	}

	resp, _ = env.request(t, "POST", "/v1/rooms/nope/join", "", map[string]string{
		"name": "ada", "subject": "math",
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown room: status = %d", resp.StatusCode)
	}
}

func TestHostAuthRequired(t *testing.T) {
	env := newTestEnv(t, "")

	resp, _ := env.request(t, "POST", "/v1/rooms/r1/start", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", resp.StatusCode)
	}

	// A player token is not a host token
	_, playerToken := env.join(t, "ada", "math")
	resp, _ = env.request(t, "POST", "/v1/rooms/r1/start", playerToken, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("player token on host route: status = %d", resp.StatusCode)
	}
}

func TestGameFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, "")
	host := env.hostToken(t)

	p1, tok1 := env.join(t, "ada", "math")
	_, tok2 := env.join(t, "bob", "film")

	// Start requires at least the host role; players are in
	resp, _ := env.request(t, "POST", "/v1/rooms/r1/start", host, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status = %d", resp.StatusCode)
	}
	// Starting twice is a state conflict
	resp, _ = env.request(t, "POST", "/v1/rooms/r1/start", host, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double start: status = %d", resp.StatusCode)
	}

	// First buzz wins, second conflicts
	resp, _ = env.request(t, "POST", "/v1/rooms/r1/buzz", tok1, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("buzz: status = %d", resp.StatusCode)
	}
	resp, _ = env.request(t, "POST", "/v1/rooms/r1/buzz", tok2, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("losing buzz: status = %d", resp.StatusCode)
	}

	resp, _ = env.request(t, "POST", "/v1/rooms/r1/judge", host, map[string]string{"status": "correct"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("judge: status = %d", resp.StatusCode)
	}
	// No pending buzz left to judge
	resp, _ = env.request(t, "POST", "/v1/rooms/r1/judge", host, map[string]string{"status": "correct"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("judge without buzz: status = %d", resp.StatusCode)
	}

	// Scores reflect the verdict
	resp, fields := env.request(t, "GET", "/v1/rooms/r1/scores", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scores: status = %d", resp.StatusCode)
	}
	var entries []model.ScoreEntry
	json.Unmarshal(fields["scores"], &entries)
	if len(entries) != 2 || entries[0].PlayerID != p1 || entries[0].Score != 10 {
		t.Fatalf("scores = %+v", entries)
	}

	// Room snapshot is public
	resp, fields = env.request(t, "GET", "/v1/rooms/r1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get room: status = %d", resp.StatusCode)
	}
	var status string
	json.Unmarshal(fields["status"], &status)
	if status != "in_progress" {
		t.Fatalf("room status = %q", status)
	}

	resp, _ = env.request(t, "POST", "/v1/rooms/r1/restart", host, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restart: status = %d", resp.StatusCode)
	}
}

func TestPlayerTokenRoomScope(t *testing.T) {
	env := newTestEnv(t, "")
	env.engine.CreateRoom(context.Background(), "r2")

	_, token := env.join(t, "ada", "math")

	resp, _ := env.request(t, "POST", "/v1/rooms/r2/buzz", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-room buzz: status = %d", resp.StatusCode)
	}
}

func TestPresence(t *testing.T) {
	env := newTestEnv(t, "")
	playerID, token := env.join(t, "ada", "math")

	resp, _ := env.request(t, "POST", "/v1/rooms/r1/presence", token, map[string]bool{"online": false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("presence: status = %d", resp.StatusCode)
	}

	players, err := env.engine.Players(context.Background(), "r1")
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(players) != 1 || players[0].ID != playerID || players[0].IsOnline {
		t.Fatalf("players = %+v", players)
	}
}

func TestQuestionsEndpoint(t *testing.T) {
	chat := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{
					"content": `[{"question":"Q1","answer":"A1"},{"question":"Q2","answer":"A2"}]`,
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer chat.Close()

	env := newTestEnv(t, chat.URL)

	resp, _ := env.request(t, "POST", "/v1/questions", "", map[string]interface{}{"count": 2})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing subject: status = %d", resp.StatusCode)
	}

	resp, fields := env.request(t, "POST", "/v1/questions", "", map[string]interface{}{"subject": "math", "count": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: status = %d", resp.StatusCode)
	}
	var questions []model.Question
	json.Unmarshal(fields["questions"], &questions)
	if len(questions) != 2 || questions[0].Question != "Q1" {
		t.Fatalf("questions = %+v", questions)
	}
}

func TestQuestionsEndpointUpstreamFailure(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	env := newTestEnv(t, down.URL)

	resp, fields := env.request(t, "POST", "/v1/questions", "", map[string]interface{}{"subject": "math", "count": 2})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	for _, key := range []string{"error", "details", "timestamp"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("error body missing %q: %v", key, fields)
		}
	}
}
