// Package authn resolves a (username, credential) pair against the remote
// directory first and the locally provisioned fallback list second, producing
// the persisted session.
package authn

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"checkin/internal/cache"
	"checkin/internal/directory"
	"checkin/internal/model"
)

var (
	// ErrMissingInput is returned when username or credential is empty after trimming.
	ErrMissingInput = errors.New("username and credential are required")
	// ErrInvalidLogin deliberately does not reveal which of the two was wrong.
	ErrInvalidLogin = errors.New("invalid username or credential")
	// ErrBadLocalRecord is returned when a matching local user carries no
	// usable record number. Failing here beats silently storing record 0.
	ErrBadLocalRecord = errors.New("local user has no valid record number")
)

// Directory is the slice of the directory client the authenticator needs.
type Directory interface {
	Users(ctx context.Context) ([]directory.User, error)
}

// Authenticator performs login resolution and session lifecycle.
type Authenticator struct {
	dir   Directory
	store *cache.Store

	mu     sync.Mutex
	remote []directory.User
	loaded bool
}

// New creates an authenticator.
func New(dir Directory, store *cache.Store) *Authenticator {
	return &Authenticator{dir: dir, store: store}
}

// Login resolves the credentials to a session and persists it.
// A directory fetch failure is tolerated: matching degrades to the local
// fallback list so login still works when the network is down.
func (a *Authenticator) Login(ctx context.Context, usernameInput, credentialInput string) (*model.Session, error) {
	username := strings.ToLower(strings.TrimSpace(usernameInput))
	credential := strings.TrimSpace(credentialInput)
	if username == "" || credential == "" {
		return nil, ErrMissingInput
	}

	for _, u := range a.remoteUsers(ctx) {
		if strings.ToLower(u.User) == username && u.ID == credential {
			sess := model.Session{
				Source:      model.SourceRemote,
				Username:    u.User,
				ID:          u.ID,
				DisplayName: u.Names + " " + u.LastNames,
				Record:      int(u.Record),
			}
			return a.persist(ctx, sess)
		}
	}

	locals, err := a.store.LocalUsers(ctx)
	if err != nil {
		log.Printf("local user list unavailable: %v", err)
	}
	for _, u := range locals {
		if strings.ToLower(u.Username) == username && u.ID == credential {
			if u.Record <= 0 {
				return nil, ErrBadLocalRecord
			}
			sess := model.Session{
				Source:      model.SourceLocal,
				Username:    u.Username,
				ID:          u.ID,
				DisplayName: u.FirstName + " " + u.LastName,
				Record:      u.Record,
			}
			return a.persist(ctx, sess)
		}
	}

	return nil, ErrInvalidLogin
}

// Current returns the persisted session, or nil when nobody is logged in.
func (a *Authenticator) Current(ctx context.Context) (*model.Session, error) {
	return a.store.LoadSession(ctx)
}

// Logout clears the persisted session.
func (a *Authenticator) Logout(ctx context.Context) error {
	return a.store.ClearSession(ctx)
}

func (a *Authenticator) persist(ctx context.Context, sess model.Session) (*model.Session, error) {
	if err := a.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// remoteUsers returns the directory list, fetching it once per process and
// retrying on each login until a fetch succeeds. Fetch failure yields an
// empty set, not an error.
func (a *Authenticator) remoteUsers(ctx context.Context) []directory.User {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return a.remote
	}
	users, err := a.dir.Users(ctx)
	if err != nil {
		log.Printf("directory unavailable, falling back to local users: %v", err)
		return nil
	}
	a.remote = users
	a.loaded = true
	return users
}
