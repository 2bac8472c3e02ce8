package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yourorg/messaging/internal/models"
)

type mongoMessages struct {
	coll *mongo.Collection
}

// visibleFilter excludes soft-deleted and expired rows without removing
// them from storage.
func visibleFilter(now time.Time) bson.M {
	return bson.M{
		"deleted_at": bson.M{"$exists": false},
		"$or": bson.A{
			bson.M{"expires_at": bson.M{"$exists": false}},
			bson.M{"expires_at": bson.M{"$gt": now}},
		},
	}
}

func (r *mongoMessages) Insert(ctx context.Context, m *models.Message) error {
	m.CreatedAt = time.Now().UTC()
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *mongoMessages) FindVisible(ctx context.Context, id string, now time.Time) (*models.Message, error) {
	filter := visibleFilter(now)
	filter["_id"] = id
	var m models.Message
	err := r.coll.FindOne(ctx, filter).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mongoMessages) ListPage(ctx context.Context, conversationID string, limit, offset int64, now time.Time) ([]*models.Message, error) {
	filter := visibleFilter(now)
	filter["conversation_id"] = conversationID
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// return in chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *mongoMessages) SetContent(ctx context.Context, id, content string, editedAt time.Time) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"content":   content,
		"edited_at": editedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMessages) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.M{"$set": bson.M{"deleted_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoMessages) CountUnread(ctx context.Context, conversationID, viewerID string, after, now time.Time) (int64, error) {
	filter := visibleFilter(now)
	filter["conversation_id"] = conversationID
	filter["sender_id"] = bson.M{"$ne": viewerID}
	filter["created_at"] = bson.M{"$gt": after}
	return r.coll.CountDocuments(ctx, filter)
}

func (r *mongoMessages) LastVisible(ctx context.Context, conversationID string, now time.Time) (*models.Message, error) {
	filter := visibleFilter(now)
	filter["conversation_id"] = conversationID
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var m models.Message
	err := r.coll.FindOne(ctx, filter, opts).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
