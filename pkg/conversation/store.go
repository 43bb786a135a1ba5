package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// SchemaVersion qualifies storage keys. Records written under any other
// version are never read back.
const SchemaVersion = "v2"

const keyPrefix = "concierge_history_" + SchemaVersion + ":"

var ErrEmptyVisitor = errors.New("conversation: empty visitor id")

// Storage is the durable key-value port the store writes through.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// LoadObserver receives soft failures swallowed by Load.
type LoadObserver func(visitorID string, err error)

// Store loads and persists sessions keyed by visitor.
type Store struct {
	storage Storage
	onError LoadObserver
}

func NewStore(storage Storage, onError LoadObserver) *Store {
	return &Store{storage: storage, onError: onError}
}

// Key returns the versioned storage key for a visitor.
func Key(visitorID string) string {
	return keyPrefix + visitorID
}

// Load returns the persisted session or an empty one. Missing records,
// storage failures and undecodable payloads all yield an empty session.
func (s *Store) Load(ctx context.Context, visitorID string) Session {
	if visitorID == "" {
		return Cleared()
	}

	raw, ok, err := s.storage.Get(ctx, Key(visitorID))
	if err != nil {
		s.report(visitorID, fmt.Errorf("read session: %w", err))
		return Cleared()
	}
	if !ok || raw == "" {
		return Cleared()
	}

	session, err := Decode(raw)
	if err != nil {
		s.report(visitorID, err)
		return Cleared()
	}
	return session
}

// Persist serializes the session under the visitor's versioned key.
func (s *Store) Persist(ctx context.Context, visitorID string, session Session) error {
	if visitorID == "" {
		return ErrEmptyVisitor
	}
	raw, err := Encode(session)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, Key(visitorID), raw); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Clear removes the persisted record.
func (s *Store) Clear(ctx context.Context, visitorID string) error {
	if visitorID == "" {
		return ErrEmptyVisitor
	}
	if err := s.storage.Remove(ctx, Key(visitorID)); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

func (s *Store) report(visitorID string, err error) {
	if s.onError != nil {
		s.onError(visitorID, err)
	}
}

// Encode serializes the turn list as a JSON array.
func Encode(session Session) (string, error) {
	turns := session.Turns
	if turns == nil {
		turns = []Turn{}
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

// Decode parses a JSON turn array. Turns with an unknown role make the whole
// record invalid.
func Decode(raw string) (Session, error) {
	var turns []Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return Session{}, fmt.Errorf("decode session: turn %d has unknown role %q", i, t.Role)
		}
	}
	if turns == nil {
		turns = []Turn{}
	}
	return Session{Turns: turns}, nil
}
