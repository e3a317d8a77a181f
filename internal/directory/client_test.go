package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsersCoercesRecordShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/examen.php", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// The live endpoint mixes numeric and string record values.
		_, _ = w.Write([]byte(`[
			{"record": 7, "id": "0102030405", "lastnames": "Doe", "names": "John", "mail": "", "phone": "", "user": "jdoe"},
			{"record": "12", "id": "1710034065", "lastnames": "Perez", "names": "Maria", "mail": "", "phone": "", "user": "mperez"}
		]`))
	}))
	defer srv.Close()

	users, err := New(srv.URL).Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, 7, int(users[0].Record))
	require.Equal(t, "jdoe", users[0].User)
	require.Equal(t, 12, int(users[1].Record))
}

func TestUsersNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	users, err := New(srv.URL).Users(context.Background())
	require.Nil(t, users)

	var dirErr *Error
	require.ErrorAs(t, err, &dirErr)
	require.Equal(t, http.StatusInternalServerError, dirErr.Status)
	require.Equal(t, "users", dirErr.Op)
}

func TestUsersTransportFailureIsError(t *testing.T) {
	c := New("http://127.0.0.1:0")
	_, err := c.Users(context.Background())
	var dirErr *Error
	require.ErrorAs(t, err, &dirErr)
	require.Zero(t, dirErr.Status)
	require.Error(t, dirErr.Unwrap())
}

func TestAttendanceQueriesRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "7", r.URL.Query().Get("record"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"record": 7, "date": "2026-08-28", "time": "08:15:00", "join_date": "2026-08-28 08:15:00"}]`))
	}))
	defer srv.Close()

	recs, err := New(srv.URL).Attendance(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "2026-08-28", recs[0].Date)
	require.Equal(t, "08:15:00", recs[0].Time)
}

func TestSubmitPostsExpectedBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	payload, err := New(srv.URL).Submit(context.Background(), 7, "jdoe")
	require.NoError(t, err)
	require.JSONEq(t, `{"ok": true}`, string(payload))
	require.Equal(t, float64(7), got["record_user"])
	require.Equal(t, "jdoe", got["join_user"])
}

func TestSubmitNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Submit(context.Background(), 7, "jdoe")
	var dirErr *Error
	require.ErrorAs(t, err, &dirErr)
	require.Equal(t, http.StatusBadRequest, dirErr.Status)
	require.Contains(t, dirErr.Error(), "nope")
}

func TestFlexIntRejectsGarbage(t *testing.T) {
	var f FlexInt
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &f))
	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	require.Equal(t, FlexInt(0), f)
}
