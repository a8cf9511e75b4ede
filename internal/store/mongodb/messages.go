package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/securechat-server/internal/store"
)

// ==== MessageStore implementation ====

// CreateMessage persists a message along with its initial readBy set.
func (s *MongoStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if _, err := s.messages.InsertOne(ctx, newMessageDoc(msg)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID.
func (s *MongoStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	var doc messageDoc
	if err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "message")
	}
	return doc.toMessage(), nil
}

// ListMessages retrieves up to limit messages of a chat, newest first.
func (s *MongoStore) ListMessages(ctx context.Context, chatID string, limit int, before *time.Time) ([]*store.Message, error) {
	filter := bson.M{"chatId": chatID}
	if before != nil {
		filter["createdAt"] = bson.M{"$lt": *before}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	return s.find(ctx, filter, opts)
}

// FindMessages selects messages matching the filter, oldest first.
func (s *MongoStore) FindMessages(ctx context.Context, f store.MessageFilter) ([]*store.Message, error) {
	filter := bson.M{"chatId": f.ChatID}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	if f.ExcludeSender != "" {
		filter["sender"] = bson.M{"$ne": f.ExcludeSender}
	}
	if f.StatusBelow != nil {
		filter["status"] = bson.M{"$lt": int(*f.StatusBelow)}
	}
	if f.NotReadBy != "" {
		filter["readBy"] = bson.M{"$ne": f.NotReadBy}
	}
	return s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*store.Message, error) {
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	msgs := make([]*store.Message, 0, len(docs))
	for i := range docs {
		msgs = append(msgs, docs[i].toMessage())
	}
	return msgs, nil
}

// AdvanceStatus sets status on the given messages whose current status is lower.
// Each message is guarded on its own so the result names exactly the ones this call moved.
func (s *MongoStore) AdvanceStatus(ctx context.Context, ids []string, status store.MessageStatus) ([]string, error) {
	now := time.Now().UTC()
	var changed []string
	for _, id := range lo.Uniq(ids) {
		res, err := s.messages.UpdateOne(ctx,
			bson.M{"_id": id, "status": bson.M{"$lt": int(status)}},
			bson.M{"$set": bson.M{"status": int(status), "updatedAt": now}},
		)
		if err != nil {
			return changed, fmt.Errorf("advance status: %w", err)
		}
		if res.ModifiedCount == 1 {
			changed = append(changed, id)
		}
	}
	return changed, nil
}

// AddReader inserts userID into readBy of the given messages.
func (s *MongoStore) AddReader(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "readBy": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"readBy": userID}},
	)
	if err != nil {
		return 0, fmt.Errorf("add reader: %w", err)
	}
	return res.ModifiedCount, nil
}

// CountUnread counts messages of a chat not yet read by userID.
func (s *MongoStore) CountUnread(ctx context.Context, chatID, userID string) (int, error) {
	n, err := s.messages.CountDocuments(ctx, bson.M{"chatId": chatID, "readBy": bson.M{"$ne": userID}})
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return int(n), nil
}

// SetReaction sets or replaces userID's reaction on a message.
func (s *MongoStore) SetReaction(ctx context.Context, messageID, userID, emoji string) error {
	res, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": messageID, "reactions.user": userID},
		bson.M{"$set": bson.M{"reactions.$.emoji": emoji}},
	)
	if err != nil {
		return fmt.Errorf("replace reaction: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	res, err = s.messages.UpdateOne(ctx,
		bson.M{"_id": messageID, "reactions.user": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"reactions": reactionDoc{User: userID, Emoji: emoji}}},
	)
	if err != nil {
		return fmt.Errorf("push reaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("message: %w", store.ErrNotFound)
	}
	return nil
}

// RemoveReaction drops userID's reaction on a message.
func (s *MongoStore) RemoveReaction(ctx context.Context, messageID, userID string) error {
	_, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$pull": bson.M{"reactions": bson.M{"user": userID}}},
	)
	if err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	return nil
}
