package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/yourorg/messaging/internal/models"
)

type mongoReactions struct {
	coll *mongo.Collection
}

func (r *mongoReactions) Toggle(ctx context.Context, reaction *models.Reaction) (bool, error) {
	filter := bson.M{
		"message_id": reaction.MessageID,
		"user_id":    reaction.UserID,
		"emoji":      reaction.Emoji,
	}
	res, err := r.coll.DeleteOne(ctx, filter)
	if err != nil {
		return false, err
	}
	if res.DeletedCount > 0 {
		return false, nil
	}
	reaction.CreatedAt = time.Now().UTC()
	if _, err := r.coll.InsertOne(ctx, reaction); err != nil {
		// duplicate key means a concurrent toggle won the insert
		if mongo.IsDuplicateKeyError(err) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

func (r *mongoReactions) ListByMessage(ctx context.Context, messageID string) ([]*models.Reaction, error) {
	cur, err := r.coll.Find(ctx, bson.M{"message_id": messageID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Reaction
	for cur.Next(ctx) {
		var re models.Reaction
		if err := cur.Decode(&re); err != nil {
			return nil, err
		}
		out = append(out, &re)
	}
	return out, cur.Err()
}
