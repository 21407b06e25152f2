package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// GameStatus is the lifecycle state of a game room.
type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusInProgress GameStatus = "in_progress"
	StatusFinished   GameStatus = "finished"
)

// UnmarshalJSON normalizes the legacy "completed" alias to "finished".
func (s *GameStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "completed" {
		raw = string(StatusFinished)
	}
	*s = GameStatus(raw)
	return nil
}

// AnswerStatus is the host's verdict on a buzzed answer. Empty means no
// verdict yet and no buzz pending.
type AnswerStatus string

const (
	AnswerPending   AnswerStatus = "pending"
	AnswerCorrect   AnswerStatus = "correct"
	AnswerIncorrect AnswerStatus = "incorrect"
	AnswerSteal     AnswerStatus = "steal"
)

// PlayerIndex decodes a JSON number or its quoted string form. Older game
// documents stored currentPlayerIndex as a string; the canonical encoding is
// a number.
type PlayerIndex int

func (i *PlayerIndex) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("player index %q: %w", b, err)
	}
	*i = PlayerIndex(n)
	return nil
}

// CurrentQuestion is the live question record inside a game document.
// BuzzedPlayerID, AnswerStatus and StealPlayerID are empty until a buzz
// lands and is judged.
type CurrentQuestion struct {
	Question       string       `json:"question" bson:"question"`
	Answer         string       `json:"answer" bson:"answer"`
	PlayerID       string       `json:"playerId" bson:"playerId"`
	TimeRemaining  int          `json:"timeRemaining" bson:"timeRemaining"`
	BuzzedPlayerID string       `json:"buzzedPlayerId" bson:"buzzedPlayerId"`
	AnswerStatus   AnswerStatus `json:"answerStatus" bson:"answerStatus"`
	StealPlayerID  string       `json:"stealPlayerId,omitempty" bson:"stealPlayerId,omitempty"`
}

// BuzzPending reports whether a buzz is awaiting the host's verdict.
func (q *CurrentQuestion) BuzzPending() bool {
	return q != nil && q.BuzzedPlayerID != "" && q.AnswerStatus == AnswerPending
}

// GameState is the singleton game document for one room. Players are in join
// order; position determines whose subject is quizzed. The scores map is the
// authoritative score record.
type GameState struct {
	ID                   string           `json:"id" bson:"_id"`
	IsActive             bool             `json:"isActive" bson:"isActive"`
	Status               GameStatus       `json:"status" bson:"status"`
	Players              []Player         `json:"players" bson:"players"`
	CurrentPlayerIndex   PlayerIndex      `json:"currentPlayerIndex" bson:"currentPlayerIndex"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex" bson:"currentQuestionIndex"`
	CurrentQuestion      *CurrentQuestion `json:"currentQuestion" bson:"currentQuestion"`
	Scores               map[string]int   `json:"scores" bson:"scores"`
	CreatedAt            string           `json:"createdAt,omitempty" bson:"createdAt,omitempty"`
}

// NewGameState returns a fresh waiting-room game document.
func NewGameState(roomID, createdAt string) *GameState {
	return &GameState{
		ID:        roomID,
		IsActive:  true,
		Status:    StatusWaiting,
		Players:   []Player{},
		Scores:    map[string]int{},
		CreatedAt: createdAt,
	}
}

// PlayerByID returns the embedded player record, or nil.
func (g *GameState) PlayerByID(id string) *Player {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return &g.Players[i]
		}
	}
	return nil
}
