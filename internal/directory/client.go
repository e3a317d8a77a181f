package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "directory_requests_total",
	Help: "Requests issued to the remote directory, by operation and outcome.",
}, []string{"op", "outcome"})

// FlexInt decodes a JSON number or a numeric string. The directory endpoint
// is not consistent about which one it sends for record fields.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("record is not numeric: %q", s)
	}
	*f = FlexInt(n)
	return nil
}

// User is a registered user as served by the directory.
type User struct {
	Record    FlexInt `json:"record"`
	ID        string  `json:"id"`
	LastNames string  `json:"lastnames"`
	Names     string  `json:"names"`
	Mail      string  `json:"mail"`
	Phone     string  `json:"phone"`
	User      string  `json:"user"`
}

// AttendanceRecord is a server-assigned attendance entry.
type AttendanceRecord struct {
	Record   FlexInt `json:"record"`
	Date     string  `json:"date"`
	Time     string  `json:"time"`
	JoinDate string  `json:"join_date"`
}

// Error reports a failed directory call: transport failure or non-2xx status.
// Callers must treat it as "directory unavailable", never as an empty result.
type Error struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("directory %s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// Client calls the remote directory service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client. The http.Client carries no timeout: a request runs to
// completion or failure, and nothing in the flows cancels it.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{},
	}
}

// Users fetches the authoritative user list.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "users", c.BaseURL+"/examen.php", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Attendance fetches the attendance history for a record number.
func (c *Client) Attendance(ctx context.Context, record int) ([]AttendanceRecord, error) {
	url := fmt.Sprintf("%s/examen.php?record=%d", c.BaseURL, record)
	var recs []AttendanceRecord
	if err := c.get(ctx, "attendance", url, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Submit posts a new attendance record. The server is the sole source of
// truth for success; the payload it returns is opaque to us.
func (c *Client) Submit(ctx context.Context, record int, username string) (json.RawMessage, error) {
	body, _ := json.Marshal(map[string]any{
		"record_user": record,
		"join_user":   username,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/examen.php", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: "submit", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues("submit", "error").Inc()
		return nil, &Error{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		requestsTotal.WithLabelValues("submit", "error").Inc()
		return nil, &Error{Op: "submit", Status: resp.StatusCode, Body: string(raw)}
	}
	requestsTotal.WithLabelValues("submit", "ok").Inc()
	return json.RawMessage(raw), nil
}

func (c *Client) get(ctx context.Context, op, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(op, "error").Inc()
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		requestsTotal.WithLabelValues(op, "error").Inc()
		return &Error{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		requestsTotal.WithLabelValues(op, "error").Inc()
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	requestsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}
