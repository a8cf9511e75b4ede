package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/securechat-server/internal/store"
)

// ==== ChatStore implementation ====

// CreateChat persists a new chat with its members and admins.
func (s *MongoStore) CreateChat(ctx context.Context, chat *store.Chat) error {
	doc := chatDoc{
		ID:        chat.ID,
		IsGroup:   chat.IsGroup,
		GroupName: chat.GroupName,
		Members:   chat.Members,
		Admins:    chat.Admins,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
	if doc.Admins == nil {
		doc.Admins = []string{}
	}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat by ID.
func (s *MongoStore) GetChat(ctx context.Context, id string) (*store.Chat, error) {
	var doc chatDoc
	if err := s.chats.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err, "chat")
	}
	return doc.toChat(), nil
}

// FindDirectChat returns the direct chat between two users.
func (s *MongoStore) FindDirectChat(ctx context.Context, userA, userB string) (*store.Chat, error) {
	filter := bson.M{
		"isGroup": false,
		"members": bson.M{"$all": []string{userA, userB}, "$size": 2},
	}
	var doc chatDoc
	if err := s.chats.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, "direct chat")
	}
	return doc.toChat(), nil
}

// ListChatsForUser lists chats the user belongs to, most recently updated first.
func (s *MongoStore) ListChatsForUser(ctx context.Context, userID string) ([]*store.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cur, err := s.chats.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	var docs []chatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode chats: %w", err)
	}
	chats := make([]*store.Chat, 0, len(docs))
	for i := range docs {
		chats = append(chats, docs[i].toChat())
	}
	return chats, nil
}

// RenameGroup sets the group name.
func (s *MongoStore) RenameGroup(ctx context.Context, chatID, name string) error {
	res, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatID, "isGroup": true},
		bson.M{"$set": bson.M{"groupName": name, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("group: %w", store.ErrNotFound)
	}
	return nil
}

// AddMembers adds users to a chat. Existing members are ignored.
func (s *MongoStore) AddMembers(ctx context.Context, chatID string, userIDs []string) error {
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{
			"$addToSet": bson.M{"members": bson.M{"$each": userIDs}},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	return nil
}

// RemoveMember removes a user from members and admins.
func (s *MongoStore) RemoveMember(ctx context.Context, chatID, userID string) error {
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$pull": bson.M{"members": userID, "admins": userID}},
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// SetLastMessage records the latest message and bumps the update time.
func (s *MongoStore) SetLastMessage(ctx context.Context, chatID, messageID string, at time.Time) error {
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$set": bson.M{"lastMessage": messageID, "updatedAt": at}},
	)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	return nil
}
