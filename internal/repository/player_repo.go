package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"buzzhost/internal/model"
)

// PlayerRepo archives player documents, keyed by player id and queryable by
// game.
type PlayerRepo interface {
	Upsert(ctx context.Context, player *model.Player) error
	GetByID(ctx context.Context, playerID string) (*model.Player, error)
	ListByGame(ctx context.Context, roomID string) ([]model.Player, error)
}

type playerRepo struct {
	collection *mongo.Collection
}

func NewPlayerRepo(db *mongo.Database) PlayerRepo {
	return &playerRepo{collection: db.Collection("players")}
}

func (r *playerRepo) Upsert(ctx context.Context, player *model.Player) error {
	_, err := r.collection.ReplaceOne(
		ctx,
		bson.M{"_id": player.ID},
		player,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *playerRepo) GetByID(ctx context.Context, playerID string) (*model.Player, error) {
	var player model.Player
	err := r.collection.FindOne(ctx, bson.M{"_id": playerID}).Decode(&player)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (r *playerRepo) ListByGame(ctx context.Context, roomID string) ([]model.Player, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"gameId": roomID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var players []model.Player
	if err := cursor.All(ctx, &players); err != nil {
		return nil, err
	}
	return players, nil
}
