// Package mongodb implements store.Store on MongoDB. Documents are keyed by opaque string IDs.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vovakirdan/securechat-server/internal/store"
)

const connectTimeout = 10 * time.Second

// MongoStore implements store.Store for MongoDB.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	chats    *mongo.Collection
	messages *mongo.Collection
}

var _ store.Store = (*MongoStore)(nil)

// Open connects to uri, pings the server and ensures indexes on the named database.
func Open(ctx context.Context, uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:   client,
		users:    db.Collection("users"),
		chats:    db.Collection("chats"),
		messages: db.Collection("messages"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uid", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	_, err = s.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "members", Value: 1}}},
		{Keys: bson.D{{Key: "isGroup", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("chat indexes: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("message indexes: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return fmt.Errorf("query %s: %w", what, err)
}

// ==== UserStore implementation ====

// CreateUser persists a new user.
func (s *MongoStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.Status == "" {
		user.Status = store.PresenceOffline
	}
	doc := userDoc{
		ID:                 user.ID,
		UID:                user.UID,
		Name:               user.Name,
		Email:              user.Email,
		PasswordHash:       user.PasswordHash,
		AvatarURL:          user.AvatarURL,
		NotificationsToken: user.NotificationsToken,
		Status:             string(user.Status),
		LastSeen:           user.LastSeen,
		Contacts:           []string{},
		PinnedChats:        []string{},
		CreatedAt:          user.CreatedAt,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*store.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, "user")
	}
	return doc.toUser(), nil
}

// GetUserByID retrieves a user by ID.
func (s *MongoStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// GetUserByEmail retrieves a user by email.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

// GetUserByUID retrieves a user by public uid.
func (s *MongoStore) GetUserByUID(ctx context.Context, uid string) (*store.User, error) {
	return s.findUser(ctx, bson.M{"uid": uid})
}

// UpdateProfile applies non-nil fields and returns the updated user.
func (s *MongoStore) UpdateProfile(ctx context.Context, id string, update store.ProfileUpdate) (*store.User, error) {
	set := bson.M{}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.AvatarURL != nil {
		set["avatarUrl"] = *update.AvatarURL
	}
	if update.NotificationsToken != nil {
		set["notificationsToken"] = *update.NotificationsToken
	}
	if len(set) == 0 {
		return s.GetUserByID(ctx, id)
	}

	var doc userDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&doc); err != nil {
		return nil, notFound(err, "user")
	}
	return doc.toUser(), nil
}

// SetPresence persists the online status and last-seen time.
func (s *MongoStore) SetPresence(ctx context.Context, id string, status store.PresenceStatus, lastSeen time.Time) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status), "lastSeen": lastSeen}})
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user: %w", store.ErrNotFound)
	}
	return nil
}

// AddContact records contactID in userID's contact list.
func (s *MongoStore) AddContact(ctx context.Context, userID, contactID string) error {
	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"contacts": contactID}}); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	return nil
}

// RemoveContact drops contactID from userID's contact list.
func (s *MongoStore) RemoveContact(ctx context.Context, userID, contactID string) error {
	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"contacts": contactID}}); err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	return nil
}

// ContactIDs returns only the identities in userID's contact list.
func (s *MongoStore) ContactIDs(ctx context.Context, userID string) ([]string, error) {
	var doc userDoc
	opts := options.FindOne().SetProjection(bson.M{"contacts": 1})
	if err := s.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc); err != nil {
		return nil, notFound(err, "user")
	}
	return doc.Contacts, nil
}

// ListContacts returns the users in userID's contact list.
func (s *MongoStore) ListContacts(ctx context.Context, userID string) ([]*store.User, error) {
	ids, err := s.ContactIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cur, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode contacts: %w", err)
	}
	users := make([]*store.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].toUser())
	}
	return users, nil
}

// NotificationTokens returns non-empty push tokens of the given users.
func (s *MongoStore) NotificationTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{"_id": bson.M{"$in": userIDs}, "notificationsToken": bson.M{"$ne": ""}}
	cur, err := s.users.Find(ctx, filter, options.Find().SetProjection(bson.M{"notificationsToken": 1}))
	if err != nil {
		return nil, fmt.Errorf("query notification tokens: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode notification tokens: %w", err)
	}
	tokens := make([]string, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.NotificationsToken)
	}
	return tokens, nil
}

// PinChat adds chatID to the user's pinned chats.
func (s *MongoStore) PinChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$addToSet": bson.M{"pinnedChats": chatID}}); err != nil {
		return fmt.Errorf("pin chat: %w", err)
	}
	return nil
}

// UnpinChat removes chatID from the user's pinned chats.
func (s *MongoStore) UnpinChat(ctx context.Context, userID, chatID string) error {
	if _, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$pull": bson.M{"pinnedChats": chatID}}); err != nil {
		return fmt.Errorf("unpin chat: %w", err)
	}
	return nil
}
