package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NewMongoStore wires the four repos onto one database and ensures indexes.
func NewMongoStore(db *mongo.Database) *Store {
	conv := db.Collection("conversations")
	part := db.Collection("participants")
	msg := db.Collection("messages")
	reac := db.Collection("reactions")

	ctx := context.Background()
	_, _ = conv.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "direct_key", Value: 1}},
		Options: options.Index().SetName("direct_key_uq").SetUnique(true).
			SetPartialFilterExpression(bson.M{"direct_key": bson.M{"$exists": true}}),
	})
	_, _ = part.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetName("conv_user_uq").SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetName("user_idx")},
	})
	_, _ = msg.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("conv_created_idx"),
	})
	_, _ = reac.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "message_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "emoji", Value: 1}},
		Options: options.Index().SetName("msg_user_emoji_uq").SetUnique(true),
	})

	return &Store{
		Conversations: &mongoConversations{coll: conv},
		Participants:  &mongoParticipants{coll: part},
		Messages:      &mongoMessages{coll: msg},
		Reactions:     &mongoReactions{coll: reac},
	}
}
