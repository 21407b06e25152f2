package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buzzhost/internal/model"
)

// GameRepo archives game documents. The store holds the live state; this is
// the durable copy written through on every committed transition.
type GameRepo interface {
	Upsert(ctx context.Context, game *model.GameState) error
	GetByID(ctx context.Context, roomID string) (*model.GameState, error)
}

type gameRepo struct {
	collection *mongo.Collection
}

func NewGameRepo(db *mongo.Database) GameRepo {
	return &gameRepo{collection: db.Collection("games")}
}

func (r *gameRepo) Upsert(ctx context.Context, game *model.GameState) error {
	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": game.ID},
		game,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *gameRepo) GetByID(ctx context.Context, roomID string) (*model.GameState, error) {
	var game model.GameState
	err := r.collection.FindOne(ctx, bson.M{"_id": roomID}).Decode(&game)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}
