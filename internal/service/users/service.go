// Package users exposes profile lookup and editing.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/securechat-server/internal/core"
	"github.com/vovakirdan/securechat-server/internal/store"
)

// Store is the persistence the user service needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	GetUserByUID(ctx context.Context, uid string) (*store.User, error)
	UpdateProfile(ctx context.Context, id string, update store.ProfileUpdate) (*store.User, error)
}

// Service implements profile operations.
type Service struct {
	store Store
}

// New creates a user service.
func New(st Store) *Service {
	return &Service{store: st}
}

// Me returns the caller's own profile.
func (s *Service) Me(ctx context.Context, userID string) (*store.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// UpdateProfile applies the non-nil fields of update. Empty updates are rejected.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update store.ProfileUpdate) (*store.User, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		update.Name = nil
	}
	if update.NotificationsToken != nil && *update.NotificationsToken == "" {
		update.NotificationsToken = nil
	}
	if update.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", core.ErrBadRequest)
	}
	u, err := s.store.UpdateProfile(ctx, userID, update)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// SearchByUID finds a user by public uid, case-insensitively.
func (s *Service) SearchByUID(ctx context.Context, uid string) (*store.User, error) {
	uid = strings.ToUpper(strings.TrimSpace(uid))
	if uid == "" {
		return nil, fmt.Errorf("%w: uid is required", core.ErrBadRequest)
	}
	u, err := s.store.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user: %w", core.ErrNotFound)
	}
	return fmt.Errorf("load user: %w", err)
}
