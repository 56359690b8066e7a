package voicebank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kazenokoe/otoforge/internal/storage"
)

// ErrSessionNotFound indicates the requested recording session does not exist.
var ErrSessionNotFound = errors.New("voicebank: session not found")

// Style selects how takes recorded in a session are sliced into samples.
type Style string

const (
	// StyleCV treats each take as one consonant-vowel sample.
	StyleCV Style = "cv"

	// StyleVCV slices each take into vowel-consonant-vowel triplets.
	StyleVCV Style = "vcv"
)

// IsValid reports whether s is a recognised recording style.
func (s Style) IsValid() bool {
	return s == StyleCV || s == StyleVCV
}

// TakeRecord tracks one recorded take within a session.
type TakeRecord struct {
	// ID is the unique take identifier.
	ID string `json:"id"`

	// Prompt is the reclist line the take was recorded against.
	Prompt string `json:"prompt"`

	// Filename is the stored audio file name.
	Filename string `json:"filename"`

	// RecordedAt is when the take was recorded.
	RecordedAt time.Time `json:"recorded_at"`
}

// Session is one recording session: a reclist being worked through for a
// voicebank, in a declared recording style.
type Session struct {
	ID        string       `json:"id"`
	BankID    string       `json:"bank_id"`
	Style     Style        `json:"style"`
	Reclist   []string     `json:"reclist"`
	Takes     []TakeRecord `json:"takes"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// sessionKey is the blob key holding one session's state.
func sessionKey(id string) string {
	return "sessions/" + id + ".json"
}

// sessionLockKey is the lock-map key serializing mutations of one session.
func sessionLockKey(id string) string {
	return "session:" + id
}

// CreateSession persists a new recording session and returns it.
func (s *Store) CreateSession(ctx context.Context, bankID string, style Style, reclist []string) (Session, error) {
	if !style.IsValid() {
		return Session{}, fmt.Errorf("voicebank: unknown recording style %q", style)
	}

	now := time.Now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		BankID:    bankID,
		Style:     style,
		Reclist:   reclist,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.writeSession(ctx, sess); err != nil {
		return Session{}, err
	}

	slog.Info("recording session created",
		"session_id", sess.ID,
		"bank_id", bankID,
		"style", style,
		"reclist_lines", len(reclist),
	)
	return sess, nil
}

// GetSession returns the session with the given ID, or ErrSessionNotFound.
// Lock-free.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	data, err := s.blobs.Read(ctx, sessionKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, fmt.Errorf("voicebank: session %q: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("voicebank: load session %q: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("voicebank: decode session %q: %w", id, err)
	}
	return sess, nil
}

// UpdateSession applies mutate to the session under its lock and persists the
// result. The mutation sees the current persisted state; returning an error
// aborts without writing. UpdatedAt is refreshed on success.
func (s *Store) UpdateSession(ctx context.Context, id string, mutate func(*Session) error) (Session, error) {
	mu := s.locks.Lock(sessionLockKey(id))
	defer mu.Unlock()

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}

	if err := mutate(&sess); err != nil {
		return Session{}, err
	}
	sess.UpdatedAt = time.Now().UTC()

	if err := s.writeSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// DeleteSession removes the session and discards its lock-map entry, since a
// deleted session's key will never be referenced again.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	key := sessionLockKey(id)
	mu := s.locks.Lock(key)

	err := s.blobs.Delete(ctx, sessionKey(id))
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("voicebank: delete session %q: %w", id, err)
	}

	s.locks.Discard(key)
	slog.Info("recording session deleted", "session_id", id)
	return nil
}

// writeSession marshals and durably stores a session.
func (s *Store) writeSession(ctx context.Context, sess Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("voicebank: encode session %q: %w", sess.ID, err)
	}
	if err := s.blobs.Write(ctx, sessionKey(sess.ID), data); err != nil {
		return fmt.Errorf("voicebank: persist session %q: %w", sess.ID, err)
	}
	return nil
}
