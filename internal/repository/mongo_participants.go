package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/yourorg/messaging/internal/models"
)

type mongoParticipants struct {
	coll *mongo.Collection
}

func (r *mongoParticipants) Add(ctx context.Context, ps ...*models.Participant) error {
	docs := make([]any, 0, len(ps))
	for _, p := range ps {
		docs = append(docs, p)
	}
	_, err := r.coll.InsertMany(ctx, docs)
	return err
}

func (r *mongoParticipants) Remove(ctx context.Context, conversationID, userID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoParticipants) Get(ctx context.Context, conversationID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID, "user_id": userID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *mongoParticipants) ListByConversation(ctx context.Context, conversationID string) ([]*models.Participant, error) {
	return r.list(ctx, bson.M{"conversation_id": conversationID})
}

func (r *mongoParticipants) ListByUser(ctx context.Context, userID string) ([]*models.Participant, error) {
	return r.list(ctx, bson.M{"user_id": userID})
}

func (r *mongoParticipants) list(ctx context.Context, filter bson.M) ([]*models.Participant, error) {
	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Participant
	for cur.Next(ctx) {
		var p models.Participant
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, cur.Err()
}

func (r *mongoParticipants) AdvanceLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	// $max keeps last_read_at monotonic under concurrent mark-reads
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"conversation_id": conversationID, "user_id": userID},
		bson.M{"$max": bson.M{"last_read_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
