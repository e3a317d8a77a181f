package attendance

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"checkin/internal/cache"
	"checkin/internal/challenge"
	"checkin/internal/directory"
	"checkin/internal/model"
)

// fakeDirectory counts submissions and lets tests control failures and timing.
type fakeDirectory struct {
	mu            sync.Mutex
	submits       int
	submitErr     error
	submitStarted chan struct{}
	submitRelease chan struct{}

	history    []directory.AttendanceRecord
	historyErr error
}

func (f *fakeDirectory) Submit(ctx context.Context, record int, username string) (json.RawMessage, error) {
	f.mu.Lock()
	f.submits++
	f.mu.Unlock()
	if f.submitStarted != nil {
		f.submitStarted <- struct{}{}
	}
	if f.submitRelease != nil {
		<-f.submitRelease
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeDirectory) Attendance(ctx context.Context, record int) ([]directory.AttendanceRecord, error) {
	return f.history, f.historyErr
}

func (f *fakeDirectory) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func newTestRecorder(t *testing.T, dir *fakeDirectory) (*Recorder, *cache.Store) {
	t.Helper()
	kv, err := cache.NewFileKV(t.TempDir())
	require.NoError(t, err)
	store := cache.NewStore(kv)
	return NewRecorder(dir, store), store
}

func testSession() model.Session {
	return model.Session{
		Source:      model.SourceRemote,
		Username:    "jdoe",
		ID:          "0102030405",
		DisplayName: "John Doe",
		Record:      7,
	}
}

// id "0102030405": position 1 holds '1', position 3 holds '2'.
func testChallenge() challenge.Challenge { return challenge.Challenge{Pos1: 1, Pos2: 3} }

func TestRegisterSuccess(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{history: []directory.AttendanceRecord{
		{Record: 7, Date: "2026-08-29", Time: "08:00:00", JoinDate: "2026-08-29 08:00:00"},
	}}
	rec, store := newTestRecorder(t, dir)

	history, err := rec.Register(ctx, testSession(), testChallenge(), "1", "2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 1, dir.submitCount())

	// The offline convenience copy was appended.
	local, err := store.Attendance(ctx, "jdoe")
	require.NoError(t, err)
	require.Len(t, local, 1)
	require.Equal(t, 7, local[0].Record)
	require.NotEmpty(t, local[0].ID)
}

func TestRegisterChallengeMismatch(t *testing.T) {
	dir := &fakeDirectory{}
	rec, _ := newTestRecorder(t, dir)

	_, err := rec.Register(context.Background(), testSession(), testChallenge(), "1", "9")
	require.ErrorIs(t, err, ErrChallengeMismatch)
	require.NotContains(t, err.Error(), "2")
	require.Zero(t, dir.submitCount())
}

func TestRegisterWithoutRecord(t *testing.T) {
	dir := &fakeDirectory{}
	rec, _ := newTestRecorder(t, dir)

	sess := testSession()
	sess.Record = 0
	_, err := rec.Register(context.Background(), sess, testChallenge(), "1", "2")
	require.ErrorIs(t, err, ErrNoRecord)
	require.Zero(t, dir.submitCount())
}

func TestRegisterRejectsConcurrentCall(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{
		submitStarted: make(chan struct{}, 1),
		submitRelease: make(chan struct{}),
	}
	rec, _ := newTestRecorder(t, dir)

	done := make(chan error, 1)
	go func() {
		_, err := rec.Register(ctx, testSession(), testChallenge(), "1", "2")
		done <- err
	}()
	<-dir.submitStarted

	// Second invocation while the first submit is in flight.
	_, err := rec.Register(ctx, testSession(), testChallenge(), "1", "2")
	require.ErrorIs(t, err, ErrRegistrationInFlight)

	close(dir.submitRelease)
	require.NoError(t, <-done)
	require.Equal(t, 1, dir.submitCount())
}

func TestRegisterNetworkErrorClearsFlag(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{submitErr: &directory.Error{Op: "submit", Status: 500, Body: "boom"}}
	rec, _ := newTestRecorder(t, dir)

	_, err := rec.Register(ctx, testSession(), testChallenge(), "1", "2")
	var dirErr *directory.Error
	require.ErrorAs(t, err, &dirErr)
	require.Equal(t, 500, dirErr.Status)

	// A retry right after must not be rejected as in-flight.
	dir.submitErr = nil
	_, err = rec.Register(ctx, testSession(), testChallenge(), "1", "2")
	require.NoError(t, err)
	require.Equal(t, 2, dir.submitCount())
}

func TestRegisterHistoryRefreshFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{historyErr: &directory.Error{Op: "attendance", Status: 502}}
	rec, _ := newTestRecorder(t, dir)

	history, err := rec.Register(ctx, testSession(), testChallenge(), "1", "2")
	require.NoError(t, err)
	require.Nil(t, history)
	require.Equal(t, 1, dir.submitCount())
}

func TestRegisterLocalRecordUsesClock(t *testing.T) {
	ctx := context.Background()
	dir := &fakeDirectory{}
	rec, store := newTestRecorder(t, dir)
	rec.now = func() time.Time {
		return time.Date(2026, 8, 29, 14, 30, 5, 0, time.UTC)
	}

	_, err := rec.Register(ctx, testSession(), testChallenge(), "1", "2")
	require.NoError(t, err)

	local, err := store.Attendance(ctx, "jdoe")
	require.NoError(t, err)
	require.Len(t, local, 1)
	require.Equal(t, "2026-08-29", local[0].Date)
	require.Equal(t, "14:30:05", local[0].Time)
	require.Equal(t, "2026-08-29 14:30:05", local[0].JoinDate)
}

func TestHistoryRequiresRecord(t *testing.T) {
	rec, _ := newTestRecorder(t, &fakeDirectory{})
	sess := testSession()
	sess.Record = 0
	_, err := rec.History(context.Background(), sess)
	require.ErrorIs(t, err, ErrNoRecord)
}
