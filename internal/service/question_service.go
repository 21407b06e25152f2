package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"buzzhost/internal/config"
	"buzzhost/internal/model"
)

// QuestionSource produces a fixed number of questions for a subject.
type QuestionSource interface {
	Generate(ctx context.Context, subject string, count int) []model.Question
}

// QuestionService generates trivia questions. It tries a chat-completion
// provider first, falls back to the Open Trivia DB, and finally pads with
// local placeholder questions so that callers always get exactly the number
// they asked for.
type QuestionService struct {
	cfg    config.QuestionsConfig
	client *http.Client
	logger *slog.Logger
}

// NewQuestionService creates a new question generation service
func NewQuestionService(cfg config.QuestionsConfig, logger *slog.Logger) *QuestionService {
	return &QuestionService{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		logger: logger,
	}
}

// Generate returns exactly count questions for subject. It never fails:
// provider errors degrade to the trivia database and then to local
// placeholders.
func (s *QuestionService) Generate(ctx context.Context, subject string, count int) []model.Question {
	if count <= 0 {
		return nil
	}

	if s.cfg.Enabled() {
		questions, err := s.GenerateFromLLM(ctx, subject, count)
		if err == nil && len(questions) >= count {
			return questions[:count]
		}
		if err != nil {
			s.logger.Warn("chat provider failed, falling back to trivia db",
				"subject", subject, "error", err)
		}
	}

	questions, err := s.fetchTrivia(ctx, subject, count)
	if err != nil {
		s.logger.Warn("trivia db failed, using local fallback",
			"subject", subject, "error", err)
	}

	if len(questions) < count {
		questions = append(questions, fallbackQuestions(subject, count-len(questions))...)
	}
	return questions[:count]
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateFromLLM asks the chat-completion provider for count questions.
// Unlike Generate it surfaces errors, so HTTP handlers can report upstream
// failures to the caller.
func (s *QuestionService) GenerateFromLLM(ctx context.Context, subject string, count int) ([]model.Question, error) {
	prompt := fmt.Sprintf(
		`Generate %d trivia questions about %s. Respond with a JSON array where each element has "question" and "answer" fields. The answers should be short, one to three words. Respond with only the JSON, no other text.`,
		count, subject)

	reqBody := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a trivia question generator. You respond only with valid JSON."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.Endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: chat provider returned %d", model.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in chat response", model.ErrMalformedResponse)
	}

	questions, err := parseQuestionJSON(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: chat provider returned no questions", model.ErrMalformedResponse)
	}
	for i := range questions {
		if questions[i].Difficulty == "" {
			questions[i].Difficulty = "medium"
		}
	}
	return questions, nil
}

// parseQuestionJSON decodes the model output, tolerating markdown code
// fences and either a bare array or a {"questions": [...]} wrapper.
func parseQuestionJSON(content string) ([]model.Question, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var questions []model.Question
	if err := json.Unmarshal([]byte(cleaned), &questions); err == nil {
		return valid(questions), nil
	}

	var wrapped struct {
		Questions []model.Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	return valid(wrapped.Questions), nil
}

func valid(questions []model.Question) []model.Question {
	out := questions[:0]
	for _, q := range questions {
		if q.Question != "" && q.Answer != "" {
			out = append(out, q)
		}
	}
	return out
}

// triviaCategories maps common subjects to Open Trivia DB category IDs
var triviaCategories = map[string]int{
	"general knowledge": 9,
	"books":             10,
	"film":              11,
	"movies":            11,
	"music":             12,
	"television":        14,
	"video games":       15,
	"science":           17,
	"computers":         18,
	"computer science":  18,
	"math":              19,
	"mathematics":       19,
	"mythology":         20,
	"sports":            21,
	"geography":         22,
	"history":           23,
	"politics":          24,
	"art":               25,
	"animals":           27,
}

type triviaResponse struct {
	ResponseCode int `json:"response_code"`
	Results      []struct {
		Question         string   `json:"question"`
		CorrectAnswer    string   `json:"correct_answer"`
		IncorrectAnswers []string `json:"incorrect_answers"`
		Difficulty       string   `json:"difficulty"`
		Category         string   `json:"category"`
	} `json:"results"`
}

func (s *QuestionService) fetchTrivia(ctx context.Context, subject string, count int) ([]model.Question, error) {
	params := url.Values{}
	// Over-fetch so the difficulty filter still leaves enough
	params.Set("amount", fmt.Sprintf("%d", count*3))
	params.Set("type", "multiple")
	if cat, ok := triviaCategories[strings.ToLower(subject)]; ok {
		params.Set("category", fmt.Sprintf("%d", cat))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.cfg.TriviaURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building trivia request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: trivia db returned %d", model.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var trivia triviaResponse
	if err := json.NewDecoder(resp.Body).Decode(&trivia); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	if trivia.ResponseCode != 0 {
		return nil, fmt.Errorf("%w: trivia db response code %d", model.ErrUpstreamUnavailable, trivia.ResponseCode)
	}

	subjectLower := strings.ToLower(subject)
	var questions []model.Question
	for _, r := range trivia.Results {
		if r.Difficulty != "medium" && r.Difficulty != "hard" {
			continue
		}
		// Keep questions loosely related to the subject when no category
		// mapping exists
		if _, mapped := triviaCategories[subjectLower]; !mapped {
			text := strings.ToLower(r.Question + " " + r.Category)
			if !strings.Contains(text, subjectLower) {
				continue
			}
		}
		questions = append(questions, model.Question{
			Question:   html.UnescapeString(r.Question),
			Answer:     html.UnescapeString(r.CorrectAnswer),
			Difficulty: r.Difficulty,
		})
		if len(questions) == count {
			break
		}
	}
	return questions, nil
}

// fallbackQuestions produces count locally generated placeholder questions,
// repeating the templates as needed.
func fallbackQuestions(subject string, count int) []model.Question {
	templates := []string{
		"What is a key concept in %s?",
		"Name a famous figure in %s.",
		"What is an important event in %s?",
	}
	questions := make([]model.Question, 0, count)
	for i := 0; i < count; i++ {
		questions = append(questions, model.Question{
			Question: fmt.Sprintf(templates[i%len(templates)], subject),
			Answer:   "This is a fallback question",
		})
	}
	return questions
}
