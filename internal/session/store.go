// Package session owns the authenticated identity: tokens, the user profile
// and the derived flags the UI navigates on.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"genstudio/internal/api"
	"genstudio/internal/models"
	"genstudio/internal/storage"
)

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrNoAIProfile      = errors.New("session: user has no AI profile")
	errMalformedAuth    = errors.New("session: auth response is missing tokens or user")
)

const logoutTimeout = 5 * time.Second

// State is a point-in-time copy of the session.
type State struct {
	AccessToken           string
	RefreshToken          string
	User                  *models.UserProfile
	IsAuthenticated       bool
	HasFinishedOnboarding bool

	Loading bool
	Error   string
}

// Store is the only writer of session state. It implements
// api.SessionProvider so the client can read tokens and report refreshes.
type Store struct {
	client    *api.Client
	tokens    *storage.TokenStore
	snapshots *storage.SnapshotStore
	logger    logrus.FieldLogger

	mu    sync.RWMutex
	state State

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
}

// New creates a Store and registers it as the client's session provider.
func New(client *api.Client, tokens *storage.TokenStore, snapshots *storage.SnapshotStore, logger logrus.FieldLogger) *Store {
	s := &Store{
		client:    client,
		tokens:    tokens,
		snapshots: snapshots,
		logger:    logger,
		subs:      make(map[int]chan State),
	}
	client.SetSessionProvider(s)
	return s
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyState()
}

func (s *Store) copyState() State {
	st := s.state
	st.User = cloneProfile(st.User)
	return st
}

// Subscribe returns a channel that receives the latest state after every
// change. Slow readers only see the most recent state. Call cancel to stop.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Store) notify() {
	st := s.Snapshot()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// update applies fn under the lock, then notifies subscribers.
func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) begin() {
	s.update(func(st *State) {
		st.Loading = true
		st.Error = ""
	})
}

func (s *Store) done() {
	s.update(func(st *State) {
		st.Loading = false
	})
}

// fail records the user-facing message for err and returns err unchanged.
func (s *Store) fail(err error) error {
	msg := messageOf(err)
	s.update(func(st *State) {
		st.Loading = false
		st.Error = msg
	})
	return err
}

func messageOf(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrNoAIProfile):
		return "This account has no company profile."
	}
	return api.MessageOf(err)
}

// ClearError drops any pending error message.
func (s *Store) ClearError() {
	s.update(func(st *State) {
		st.Error = ""
	})
}

// persist writes the snapshot. Failures are logged, the in-memory state
// stays authoritative for this process.
func (s *Store) persist(ctx context.Context) {
	s.mu.RLock()
	snap := storage.Snapshot{
		User:                  cloneProfile(s.state.User),
		IsAuthenticated:       s.state.IsAuthenticated,
		HasFinishedOnboarding: s.state.HasFinishedOnboarding,
		AccessToken:           s.state.AccessToken,
		RefreshToken:          s.state.RefreshToken,
	}
	s.mu.RUnlock()

	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.logger.WithError(err).Warn("failed to persist session snapshot")
	}
}

// establish stores a fresh session from a login or verify response.
func (s *Store) establish(ctx context.Context, auth *models.AuthResponse) error {
	tokens := auth.Tokens()
	if err := s.tokens.Save(ctx, tokens); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}

	user := cloneProfile(auth.User)
	s.update(func(st *State) {
		st.AccessToken = tokens.AccessToken
		st.RefreshToken = tokens.RefreshToken
		st.User = user
		st.IsAuthenticated = true
		st.HasFinishedOnboarding = user.HasFinishedOnboarding
		st.Loading = false
		st.Error = ""
	})
	s.persist(ctx)
	return nil
}

// clearLocal wipes memory and both persisted namespaces. It never calls the
// backend.
func (s *Store) clearLocal(ctx context.Context) {
	s.update(func(st *State) {
		*st = State{}
	})

	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to clear stored tokens")
	}
	if err := s.snapshots.Clear(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to clear session snapshot")
	}
}

// Hydrate restores the session saved by a previous run. The token namespace
// is ground truth: without tokens the session is logged out whatever the
// snapshot says.
func (s *Store) Hydrate(ctx context.Context) error {
	tokens, err := s.tokens.Tokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored tokens: %w", err)
	}

	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("discarding unreadable session snapshot")
		snap = nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"has_access_token":  tokens.AccessToken != "",
		"has_refresh_token": tokens.RefreshToken != "",
		"has_snapshot":      snap != nil,
	})

	if tokens.AccessToken == "" {
		if snap != nil && snap.IsAuthenticated {
			log.Warn("snapshot claims a session but no tokens are stored, logging out")
		}
		s.clearLocal(ctx)
		if snap != nil && snap.HasFinishedOnboarding {
			s.update(func(st *State) {
				st.HasFinishedOnboarding = true
			})
			s.persist(ctx)
		}
		return nil
	}

	if tokens.RefreshToken == "" {
		log.Warn("stored session has no refresh token, logging out")
		s.clearLocal(ctx)
		return nil
	}

	if snap == nil || snap.User == nil {
		s.recoverProfile(ctx, tokens, snap, log)
		return nil
	}

	user := cloneProfile(snap.User)
	s.update(func(st *State) {
		st.AccessToken = tokens.AccessToken
		st.RefreshToken = tokens.RefreshToken
		st.User = user
		st.IsAuthenticated = true
		st.HasFinishedOnboarding = snap.HasFinishedOnboarding || user.HasFinishedOnboarding
	})

	if snap.AccessToken != tokens.AccessToken || snap.RefreshToken != tokens.RefreshToken || !snap.IsAuthenticated {
		log.Debug("reconciling snapshot with token store")
		s.persist(ctx)
	}
	return nil
}

// recoverProfile rebuilds the user from GET /users/me when the tokens
// survived but the snapshot did not. The session is cleared only when the
// backend rejects the tokens; after a transport failure they stay stored for
// the next launch and this run starts signed out.
func (s *Store) recoverProfile(ctx context.Context, tokens models.AuthTokens, snap *storage.Snapshot, log logrus.FieldLogger) {
	log.Warn("session snapshot is missing, rebuilding profile from the backend")
	s.update(func(st *State) {
		st.AccessToken = tokens.AccessToken
		st.RefreshToken = tokens.RefreshToken
	})

	resp, err := s.client.Get(ctx, api.PathMe, nil)
	if err != nil {
		status := api.StatusOf(err)
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			log.WithError(err).Warn("stored tokens were rejected, logging out")
			s.clearLocal(ctx)
			return
		}
		log.WithError(err).Warn("failed to rebuild profile, keeping stored tokens")
		s.update(func(st *State) {
			*st = State{HasFinishedOnboarding: snap != nil && snap.HasFinishedOnboarding}
		})
		return
	}

	user, err := mergeProfile(nil, resp.Data)
	if err != nil || user.ID == "" {
		log.WithError(err).Warn("profile response is unusable, logging out")
		s.clearLocal(ctx)
		return
	}

	s.update(func(st *State) {
		st.User = user
		st.IsAuthenticated = st.AccessToken != "" && st.RefreshToken != ""
		st.HasFinishedOnboarding = user.HasFinishedOnboarding || (snap != nil && snap.HasFinishedOnboarding)
	})
	s.persist(ctx)
}

// enforceInvariant forces a local logout when the state claims to be
// authenticated without tokens or a user.
func (s *Store) enforceInvariant(ctx context.Context) {
	s.mu.RLock()
	broken := s.state.IsAuthenticated &&
		(s.state.AccessToken == "" || s.state.RefreshToken == "" || s.state.User == nil)
	s.mu.RUnlock()

	if broken {
		s.logger.Error("authenticated session without tokens or user, logging out")
		s.clearLocal(ctx)
	}
}

// AccessToken reads the token store first and falls back to memory.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	s.enforceInvariant(ctx)

	token, err := s.tokens.AccessToken(ctx)
	if err == nil && token != "" {
		return token, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken, err
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	token, err := s.tokens.RefreshToken(ctx)
	if err == nil && token != "" {
		return token, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken, err
}

func (s *Store) AccountType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User != nil {
		if s.state.User.IsAI() {
			return models.AccountAI
		}
		return models.AccountStandard
	}
	// No profile yet (rebuilding after a lost snapshot): trust the token.
	if t := api.TokenAccountType(s.state.AccessToken); t != "" {
		return t
	}
	return models.AccountStandard
}

// OnRefreshed stores rotated tokens in both the token store and memory.
func (s *Store) OnRefreshed(ctx context.Context, tokens models.AuthTokens) error {
	if err := s.tokens.Save(ctx, tokens); err != nil {
		return fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	s.update(func(st *State) {
		st.AccessToken = tokens.AccessToken
		if tokens.RefreshToken != "" {
			st.RefreshToken = tokens.RefreshToken
		}
	})
	s.persist(ctx)
	return nil
}

// OnAuthFailure is called by the client when the session cannot be refreshed.
func (s *Store) OnAuthFailure(ctx context.Context) {
	s.logger.Info("session could not be refreshed, logging out")
	s.clearLocal(ctx)
}

// Logout notifies the backend on a best-effort basis and always clears the
// local session. It never fails and is safe to call repeatedly.
func (s *Store) Logout(ctx context.Context) {
	s.mu.RLock()
	hadSession := s.state.IsAuthenticated || s.state.AccessToken != ""
	accountType := models.AccountStandard
	if s.state.User.IsAI() {
		accountType = models.AccountAI
	}
	s.mu.RUnlock()

	if hadSession {
		refreshToken, _ := s.RefreshToken(ctx)

		callCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
		_, err := s.client.Post(callCtx, api.LogoutPath(accountType), map[string]string{"refreshToken": refreshToken})
		cancel()
		if err != nil {
			s.logger.WithError(err).Debug("logout notification failed, clearing local session anyway")
		}
	}

	s.clearLocal(context.WithoutCancel(ctx))
}

func (s *Store) requireAuth() (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.IsAuthenticated || s.state.User == nil {
		return nil, ErrNotAuthenticated
	}
	return cloneProfile(s.state.User), nil
}

func cloneProfile(u *models.UserProfile) *models.UserProfile {
	if u == nil {
		return nil
	}
	out := *u
	if u.AIProfile != nil {
		ai := *u.AIProfile
		if ai.Usage != nil {
			usage := *ai.Usage
			ai.Usage = &usage
		}
		out.AIProfile = &ai
	}
	return &out
}
