package model

import "time"

// Question is an immutable question/answer pair generated for one player's
// specialist subject. Difficulty is cosmetic.
type Question struct {
	Question   string `json:"question" bson:"question"`
	Answer     string `json:"answer" bson:"answer"`
	Difficulty string `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

// Player is a participant document. The copy embedded in the game state
// mirrors this; the score in GameState.Scores is authoritative, the Score
// field here is kept for display.
type Player struct {
	ID        string     `json:"id" bson:"_id"`
	GameID    string     `json:"gameId" bson:"gameId"`
	Name      string     `json:"name" bson:"name"`
	Subject   string     `json:"subject" bson:"subject"`
	Score     int        `json:"score" bson:"score"`
	Buzzed    bool       `json:"buzzed" bson:"buzzed"`
	HasBuzzed bool       `json:"hasBuzzed" bson:"hasBuzzed"`
	IsOnline  bool       `json:"isOnline" bson:"isOnline"`
	LastSeen  time.Time  `json:"lastSeen" bson:"lastSeen"`
	Questions []Question `json:"questions" bson:"questions"`
}

// JoinResponse is returned when a player joins (or rejoins) a room.
type JoinResponse struct {
	PlayerID string     `json:"playerId"`
	Token    string     `json:"token"`
	Rejoined bool       `json:"rejoined"`
	Game     *GameState `json:"game"`
}

// ScoreEntry is one row of the sorted scores view.
type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}
