// Package attendance orchestrates a registration: challenge validation,
// submission to the directory and the follow-up history refresh.
package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"checkin/internal/cache"
	"checkin/internal/challenge"
	"checkin/internal/directory"
	"checkin/internal/model"
)

var registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attendance_registrations_total",
	Help: "Attendance registration attempts by outcome.",
}, []string{"outcome"})

var (
	// ErrRegistrationInFlight rejects a second registration while one is running.
	ErrRegistrationInFlight = errors.New("a registration is already in progress")
	// ErrNoRecord is returned for sessions without a record number.
	ErrNoRecord = errors.New("session has no record number")
	// ErrChallengeMismatch keeps the expected digits undisclosed.
	ErrChallengeMismatch = errors.New("incorrect digits")
)

// Directory is the slice of the directory client the recorder needs.
type Directory interface {
	Submit(ctx context.Context, record int, username string) (json.RawMessage, error)
	Attendance(ctx context.Context, record int) ([]directory.AttendanceRecord, error)
}

// Recorder registers attendance for the active session.
type Recorder struct {
	dir      Directory
	store    *cache.Store
	inFlight atomic.Bool
	now      func() time.Time
}

// NewRecorder creates a recorder.
func NewRecorder(dir Directory, store *cache.Store) *Recorder {
	return &Recorder{dir: dir, store: store, now: time.Now}
}

// Register validates the challenge and submits the attendance record.
// On success it returns the refreshed remote history; a failed refresh is
// non-fatal and yields a nil history (the registration still stands).
// At most one registration runs at a time; the flag is cleared on every exit
// so a failed attempt can be retried immediately.
func (r *Recorder) Register(ctx context.Context, sess model.Session, ch challenge.Challenge, guess1, guess2 string) ([]directory.AttendanceRecord, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		registrationsTotal.WithLabelValues("busy").Inc()
		return nil, ErrRegistrationInFlight
	}
	defer r.inFlight.Store(false)

	if sess.Record == 0 {
		registrationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrNoRecord
	}
	if !ch.Validate(sess.ID, guess1, guess2) {
		registrationsTotal.WithLabelValues("mismatch").Inc()
		return nil, ErrChallengeMismatch
	}

	if _, err := r.dir.Submit(ctx, sess.Record, sess.Username); err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	registrationsTotal.WithLabelValues("ok").Inc()

	// Offline convenience copy; never reconciled with the remote history.
	now := r.now()
	local := model.LocalAttendanceRecord{
		ID:       uuid.NewString(),
		Record:   sess.Record,
		Date:     now.Format("2006-01-02"),
		Time:     now.Format("15:04:05"),
		JoinDate: now.Format("2006-01-02 15:04:05"),
	}
	if err := r.store.AppendAttendance(ctx, sess.Username, local); err != nil {
		log.Printf("local attendance append failed for %s: %v", sess.Username, err)
	}

	history, err := r.dir.Attendance(ctx, sess.Record)
	if err != nil {
		log.Printf("history refresh failed after registration: %v", err)
		return nil, nil
	}
	return history, nil
}

// History returns the remote history for the session's record number.
func (r *Recorder) History(ctx context.Context, sess model.Session) ([]directory.AttendanceRecord, error) {
	if sess.Record == 0 {
		return nil, ErrNoRecord
	}
	return r.dir.Attendance(ctx, sess.Record)
}
