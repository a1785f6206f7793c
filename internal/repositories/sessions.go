package repositories

import (
	"encoding/json"
	"errors"
	"fmt"

	"abhyasika/internal/cache"
	"abhyasika/internal/models"
)

// ErrSessionNotFound is returned for an unknown or logged-out session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps active sessions in the cache under session:{id}.
type SessionStore struct {
	cache cache.Cache
}

func sessionKey(id string) string { return "session:" + id }

func (s *SessionStore) Save(sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.cache.Set(sessionKey(sess.SessionID), string(data))
}

func (s *SessionStore) Get(id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	raw, found, err := s.cache.Get(sessionKey(id))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, ErrSessionNotFound
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(id string) error {
	return s.cache.Remove(sessionKey(id))
}
