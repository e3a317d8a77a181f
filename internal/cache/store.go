package cache

import (
	"context"
	"encoding/json"
	"log"

	"checkin/internal/model"
)

const (
	keySession    = "loggedUser"
	keyLocalUsers = "localUsers"
)

func attendanceKey(username string) string { return "attendance_" + username }

// Store exposes the typed operations of the local cache on top of a KV
// backend. Malformed stored data is treated as absence: the cache is a
// convenience, never an error source.
type Store struct {
	kv KV
}

// NewStore wraps a KV backend.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// SaveSession persists the active session.
func (s *Store) SaveSession(ctx context.Context, sess model.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, keySession, b)
}

// LoadSession returns the persisted session, or nil when absent.
func (s *Store) LoadSession(ctx context.Context) (*model.Session, error) {
	b, err := s.kv.Get(ctx, keySession)
	if err != nil || b == nil {
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		log.Printf("discarding malformed stored session: %v", err)
		return nil, nil
	}
	if sess.Username == "" {
		return nil, nil
	}
	return &sess, nil
}

// ClearSession removes the persisted session.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.kv.Delete(ctx, keySession)
}

// LocalUsers returns the provisioned fallback user list; empty when absent.
func (s *Store) LocalUsers(ctx context.Context) ([]model.LocalUser, error) {
	b, err := s.kv.Get(ctx, keyLocalUsers)
	if err != nil || b == nil {
		return nil, err
	}
	var users []model.LocalUser
	if err := json.Unmarshal(b, &users); err != nil {
		log.Printf("discarding malformed local user list: %v", err)
		return nil, nil
	}
	return users, nil
}

// SaveLocalUsers replaces the provisioned fallback user list.
func (s *Store) SaveLocalUsers(ctx context.Context, users []model.LocalUser) error {
	b, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, keyLocalUsers, b)
}

// AppendAttendance appends one record to a user's local log. Read-modify-write:
// safe only under the app's single-writer assumption.
func (s *Store) AppendAttendance(ctx context.Context, username string, rec model.LocalAttendanceRecord) error {
	existing, err := s.Attendance(ctx, username)
	if err != nil {
		return err
	}
	b, err := json.Marshal(append(existing, rec))
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, attendanceKey(username), b)
}

// Attendance returns a user's local attendance log; empty when absent.
func (s *Store) Attendance(ctx context.Context, username string) ([]model.LocalAttendanceRecord, error) {
	b, err := s.kv.Get(ctx, attendanceKey(username))
	if err != nil || b == nil {
		return nil, err
	}
	var recs []model.LocalAttendanceRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		log.Printf("discarding malformed attendance log for %s: %v", username, err)
		return nil, nil
	}
	return recs, nil
}
