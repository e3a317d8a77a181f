package model

// SourceRemote and SourceLocal tag where a session's user was resolved from.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// Session is the locally persisted record of the authenticated user.
// Record is 0 when the user has no usable record number; attendance
// submission requires a non-zero record.
type Session struct {
	Source      string `json:"source"`
	Username    string `json:"username"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Record      int    `json:"record,omitempty"`
}

// LocalUser is a locally provisioned fallback user. The shape mirrors the
// directory fields so both resolve to the same Session.
type LocalUser struct {
	Username  string `json:"user"`
	FirstName string `json:"names"`
	LastName  string `json:"lastnames"`
	ID        string `json:"id"`
	Record    int    `json:"record"`
}

// LocalAttendanceRecord is one entry of the per-user append-only log kept in
// the local cache. It is an offline convenience and is never reconciled with
// the remote history.
type LocalAttendanceRecord struct {
	ID       string `json:"id"`
	Record   int    `json:"record"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	JoinDate string `json:"join_date"`
}
