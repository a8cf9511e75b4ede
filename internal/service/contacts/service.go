package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/store"
)

// Common errors for contact operations.
var (
	ErrCannotAddSelf = fmt.Errorf("%w: cannot add yourself", core.ErrBadRequest)
	ErrUIDRequired   = fmt.Errorf("%w: uid is required", core.ErrBadRequest)
	ErrUserNotFound  = fmt.Errorf("user: %w", core.ErrNotFound)
)

// Store is the persistence the contact service needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	GetUserByUID(ctx context.Context, uid string) (*store.User, error)
	AddContact(ctx context.Context, userID, contactID string) error
	RemoveContact(ctx context.Context, userID, contactID string) error
	ListContacts(ctx context.Context, userID string) ([]*store.User, error)
}

// Notifier delivers contact events to users' live connections.
type Notifier interface {
	ToUsers(userIDs []string, ev *core.Event) int
}

// Service provides contact management business logic.
// Contact links are symmetric: adding or removing updates both users.
type Service struct {
	store  Store
	events Notifier
}

// New creates a new contact service.
func New(st Store, events Notifier) *Service {
	return &Service{
		store:  st,
		events: events,
	}
}

// Add links userID and the user with the given public uid.
func (s *Service) Add(ctx context.Context, userID, uid string) ([]*store.User, error) {
	other, err := s.resolve(ctx, uid)
	if err != nil {
		return nil, err
	}
	if other.ID == userID {
		return nil, ErrCannotAddSelf
	}

	if err := s.store.AddContact(ctx, userID, other.ID); err != nil {
		return nil, fmt.Errorf("add contact: %w", err)
	}
	if err := s.store.AddContact(ctx, other.ID, userID); err != nil {
		return nil, fmt.Errorf("add reverse contact: %w", err)
	}

	s.events.ToUsers([]string{userID, other.ID}, &core.Event{
		Kind:  core.EventContactAdded,
		By:    userID,
		Other: other.ID,
	})
	return s.List(ctx, userID)
}

// Remove unlinks userID and the user with the given public uid.
func (s *Service) Remove(ctx context.Context, userID, uid string) ([]*store.User, error) {
	other, err := s.resolve(ctx, uid)
	if err != nil {
		return nil, err
	}

	if err := s.store.RemoveContact(ctx, userID, other.ID); err != nil {
		return nil, fmt.Errorf("remove contact: %w", err)
	}
	if err := s.store.RemoveContact(ctx, other.ID, userID); err != nil {
		return nil, fmt.Errorf("remove reverse contact: %w", err)
	}

	s.events.ToUsers([]string{userID, other.ID}, &core.Event{
		Kind:  core.EventContactRemoved,
		By:    userID,
		Other: other.ID,
	})
	return s.List(ctx, userID)
}

// List returns userID's contacts with their presence.
func (s *Service) List(ctx context.Context, userID string) ([]*store.User, error) {
	contacts, err := s.store.ListContacts(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

func (s *Service) resolve(ctx context.Context, uid string) (*store.User, error) {
	uid = strings.ToUpper(strings.TrimSpace(uid))
	if uid == "" {
		return nil, ErrUIDRequired
	}
	other, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup uid: %w", err)
	}
	return other, nil
}
