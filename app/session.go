package app

import (
	"context"

	"github.com/goliatone/go-scriptdesk/access"
	"github.com/goliatone/go-scriptdesk/storage"
)

// CurrentUser returns the session user.
func (s *State) CurrentUser() access.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SwitchUser makes the roster user id the session user and persists the
// choice. The session is unchanged when id is unknown or the write fails.
func (s *State) SwitchUser(ctx context.Context, id string) (access.User, error) {
	u, err := s.roster.Find(id)
	if err != nil {
		return access.User{}, err
	}
	if err := storage.PutJSON(ctx, s.kv, storage.KeyCurrentUser, u); err != nil {
		return access.User{}, err
	}

	s.mu.Lock()
	prev := s.current
	s.current = u
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("session user switched from %q to %q", prev.Name, u.Name)
	return u, nil
}

// loadSession resolves the persisted user against the roster. Absent,
// malformed or unknown entries fall back to the roster default.
func (s *State) loadSession(ctx context.Context) access.User {
	var stored access.User
	found, err := storage.GetJSON(ctx, s.kv, storage.KeyCurrentUser, &stored)
	switch {
	case err != nil:
		s.logger.Warn("ignoring stored session user: %v", err)
	case !found:
	default:
		if u, ferr := s.roster.Find(stored.ID); ferr == nil {
			return u
		}
		s.logger.Warn("stored session user %q is not in the roster", stored.ID)
	}
	return s.roster.Default()
}
