package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"genstudio/internal/api"
	"genstudio/internal/logging"
	"genstudio/internal/models"
	"genstudio/internal/storage"
)

// fakeBackend serves just enough of the API for the store.
type fakeBackend struct {
	mu           sync.Mutex
	validAccess  string
	refreshFails bool
	logoutFails  bool
	patchFails   bool
	emptyUploads bool
	logoutCalls  int
	refreshCalls int
	lastPatch    map[string]interface{}
}

func (b *fakeBackend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		switch r.URL.Path {
		case api.PathLogin, api.PathAILogin:
			var req models.LoginRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Password != "x" {
				respond(w, http.StatusUnauthorized, map[string]interface{}{"message": []string{"Invalid credentials"}})
				return
			}
			b.validAccess = "access-1"
			userType := ""
			if r.URL.Path == api.PathAILogin {
				userType = models.AccountAI
			}
			respond(w, http.StatusOK, envelope(models.AuthResponse{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				User: &models.UserProfile{
					ID:        "u1",
					Email:     req.Email,
					FirstName: "Ada",
					Type:      userType,
					AIProfile: &models.AIProfile{ID: "p1", CompanyName: "Acme", Plan: "free"},
				},
			}))

		case api.PathRefresh, api.PathAIRefresh:
			b.refreshCalls++
			if b.refreshFails {
				respond(w, http.StatusUnauthorized, map[string]interface{}{"message": "Refresh token expired"})
				return
			}
			b.validAccess = "access-2"
			respond(w, http.StatusOK, envelope(models.AuthTokens{AccessToken: "access-2", RefreshToken: "refresh-2"}))

		case api.PathLogout, api.PathAILogout:
			b.logoutCalls++
			if b.logoutFails {
				respond(w, http.StatusInternalServerError, map[string]interface{}{"message": "down"})
				return
			}
			respond(w, http.StatusOK, envelope(nil))

		case api.PathMe:
			if r.Header.Get("Authorization") != "Bearer "+b.validAccess {
				respond(w, http.StatusUnauthorized, map[string]interface{}{"message": "Token expired"})
				return
			}
			if r.Method == http.MethodPatch {
				if b.patchFails {
					respond(w, http.StatusInternalServerError, nil)
					return
				}
				b.lastPatch = map[string]interface{}{}
				json.NewDecoder(r.Body).Decode(&b.lastPatch)
				respond(w, http.StatusOK, envelope(b.lastPatch))
				return
			}
			respond(w, http.StatusOK, envelope(map[string]interface{}{"id": "u1", "phone": "555"}))

		case api.AIProfilePath("p1"):
			var patch map[string]interface{}
			json.NewDecoder(r.Body).Decode(&patch)
			respond(w, http.StatusOK, envelope(patch))

		case api.PathMyAvatar:
			if _, _, err := r.FormFile("file"); err != nil {
				respond(w, http.StatusBadRequest, map[string]interface{}{"message": "file is required"})
				return
			}
			if b.emptyUploads {
				respond(w, http.StatusOK, envelope(map[string]string{"avatarUrl": ""}))
				return
			}
			respond(w, http.StatusOK, envelope(map[string]string{"avatarUrl": "http://cdn/avatar.png"}))

		case api.AIProfileLogoPath("p1"):
			if b.emptyUploads {
				respond(w, http.StatusOK, envelope(map[string]string{}))
				return
			}
			respond(w, http.StatusOK, envelope(map[string]string{"logoUrl": "http://cdn/logo.png"}))

		case api.PathMyPassword:
			respond(w, http.StatusBadRequest, map[string]interface{}{"data": map[string]string{"message": "Old password is incorrect"}})

		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			respond(w, http.StatusNotFound, nil)
		}
	}
}

func envelope(data interface{}) models.ResponseBody {
	return models.ResponseBody{Status: "success", StatusCode: http.StatusOK, Data: data}
}

func respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type fixture struct {
	backend   *fakeBackend
	store     *Store
	tokens    *storage.TokenStore
	snapshots *storage.SnapshotStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	tokens := storage.NewTokenStore(storage.NewMemoryKV())
	snapshots := storage.NewSnapshotStore(storage.NewMemoryKV())
	client := api.New(srv.URL)

	return &fixture{
		backend:   backend,
		store:     New(client, tokens, snapshots, logging.Discard()),
		tokens:    tokens,
		snapshots: snapshots,
	}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	if _, err := f.store.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

func TestLogin_PersistsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.store.Login(ctx, "a@b.com", "x")
	if err != nil {
		t.Fatalf("Expected login to succeed, got %v", err)
	}
	if user.Email != "a@b.com" {
		t.Errorf("Expected returned user, got %+v", user)
	}

	st := f.store.Snapshot()
	if !st.IsAuthenticated || st.AccessToken == "" || st.User == nil {
		t.Fatalf("Expected authenticated state, got %+v", st)
	}
	if st.Loading || st.Error != "" {
		t.Errorf("Expected idle state without error, got loading=%v error=%q", st.Loading, st.Error)
	}

	stored, _ := f.tokens.Tokens(ctx)
	if stored.AccessToken != "access-1" || stored.RefreshToken != "refresh-1" {
		t.Errorf("Expected tokens persisted, got %+v", stored)
	}
	snap, _ := f.snapshots.Load(ctx)
	if snap == nil || !snap.IsAuthenticated || snap.User.Email != "a@b.com" {
		t.Errorf("Expected snapshot persisted, got %+v", snap)
	}
}

func TestLogin_FailureSetsErrorAndReturnsIt(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Login(context.Background(), "a@b.com", "wrong")
	if !api.IsUnauthorized(err) {
		t.Fatalf("Expected 401 error, got %v", err)
	}

	st := f.store.Snapshot()
	if st.Error != "Invalid credentials" {
		t.Errorf("Expected extracted message, got %q", st.Error)
	}
	if st.IsAuthenticated {
		t.Error("Expected unauthenticated state")
	}

	f.store.ClearError()
	if f.store.Snapshot().Error != "" {
		t.Error("Expected error cleared")
	}
}

func TestLoginAI_MarksAccountType(t *testing.T) {
	f := newFixture(t)

	if _, err := f.store.LoginAI(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatalf("LoginAI failed: %v", err)
	}
	if f.store.AccountType() != models.AccountAI {
		t.Errorf("Expected AI account type, got %q", f.store.AccountType())
	}
}

func TestLogout_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t)
	f.backend.logoutFails = true

	for i := 0; i < 2; i++ {
		f.store.Logout(ctx)

		st := f.store.Snapshot()
		if st.IsAuthenticated || st.AccessToken != "" || st.RefreshToken != "" || st.User != nil {
			t.Fatalf("logout #%d: expected cleared state, got %+v", i+1, st)
		}
		stored, _ := f.tokens.Tokens(ctx)
		if stored.AccessToken != "" || stored.RefreshToken != "" {
			t.Errorf("logout #%d: expected tokens cleared, got %+v", i+1, stored)
		}
		if snap, _ := f.snapshots.Load(ctx); snap != nil {
			t.Errorf("logout #%d: expected snapshot cleared, got %+v", i+1, snap)
		}
	}

	if f.backend.logoutCalls != 1 {
		t.Errorf("Expected one server notification, got %d", f.backend.logoutCalls)
	}
}

func TestUpdateProfile_MergesInsteadOfReplacing(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	user, err := f.store.UpdateProfile(context.Background(), map[string]interface{}{"firstName": "X"})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if user.FirstName != "X" {
		t.Errorf("Expected firstName updated, got %q", user.FirstName)
	}
	if got := f.store.Snapshot().User; got.Email != "a@b.com" || got.AIProfile == nil || got.AIProfile.CompanyName != "Acme" {
		t.Errorf("Expected untouched fields kept, got %+v", got)
	}
}

func TestUpdateAIProfile(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	user, err := f.store.UpdateAIProfile(context.Background(), map[string]interface{}{"activity": "Bakery"})
	if err != nil {
		t.Fatalf("UpdateAIProfile failed: %v", err)
	}
	if user.AIProfile.Activity != "Bakery" || user.AIProfile.CompanyName != "Acme" {
		t.Errorf("Expected nested merge, got %+v", user.AIProfile)
	}
}

func TestUpdateAIProfile_RequiresProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.UpdateAIProfile(context.Background(), map[string]interface{}{"activity": "x"})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if f.store.Snapshot().Error == "" {
		t.Error("Expected error recorded in state")
	}
}

func TestUploads_MergeRemoteURLs(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, []byte("img"), 0o600); err != nil {
		t.Fatal(err)
	}

	avatar, err := f.store.UploadAvatar(ctx, path)
	if err != nil {
		t.Fatalf("UploadAvatar failed: %v", err)
	}
	logo, err := f.store.UploadLogo(ctx, "p1", path)
	if err != nil {
		t.Fatalf("UploadLogo failed: %v", err)
	}

	user := f.store.Snapshot().User
	if user.AvatarURL != avatar || avatar != "http://cdn/avatar.png" {
		t.Errorf("Expected avatar merged, got %q", user.AvatarURL)
	}
	if user.AIProfile.LogoURL != logo || user.AIProfile.CompanyName != "Acme" {
		t.Errorf("Expected logo merged into AI profile, got %+v", user.AIProfile)
	}
}

func TestUploads_MissingURL(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.emptyUploads = true
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(path, []byte("img"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		upload func() (string, error)
		want   string
	}{
		{"avatar", func() (string, error) { return f.store.UploadAvatar(ctx, path) }, "avatar upload returned no url"},
		{"logo", func() (string, error) { return f.store.UploadLogo(ctx, "p1", path) }, "logo upload returned no url"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			url, err := tc.upload()
			if err == nil {
				t.Fatalf("Expected an error, got url %q", url)
			}
			if err.Error() != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, err.Error())
			}
			if strings.Contains(err.Error(), "<nil>") {
				t.Errorf("Error leaks a nil cause: %q", err.Error())
			}
		})
	}

	if user := f.store.Snapshot().User; user.AvatarURL != "" || user.AIProfile.LogoURL != "" {
		t.Errorf("Expected profile untouched, got %+v", user)
	}
}

func TestChangePassword_NestedErrorMessage(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	err := f.store.ChangePassword(context.Background(), "old", "new")
	if api.StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %v", err)
	}
	if got := f.store.Snapshot().Error; got != "Old password is incorrect" {
		t.Errorf("Expected data.message, got %q", got)
	}
}

func TestFinishOnboarding_KeepsLocalFlagWhenSyncFails(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.patchFails = true

	f.store.FinishOnboarding(context.Background())

	st := f.store.Snapshot()
	if !st.HasFinishedOnboarding || !st.User.HasFinishedOnboarding {
		t.Errorf("Expected local flag set, got %+v", st)
	}
	snap, _ := f.snapshots.Load(context.Background())
	if snap == nil || !snap.HasFinishedOnboarding {
		t.Error("Expected flag persisted")
	}
}

func TestExpiredAccessToken_RefreshIsTransparent(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// The backend now only accepts the token it hands out on refresh.
	f.backend.mu.Lock()
	f.backend.validAccess = "access-2"
	f.backend.mu.Unlock()

	user, err := f.store.FetchProfile(context.Background())
	if err != nil {
		t.Fatalf("Expected transparent refresh, got %v", err)
	}
	if user.Phone != "555" || user.Email != "a@b.com" {
		t.Errorf("Expected fetched profile merged, got %+v", user)
	}

	st := f.store.Snapshot()
	if st.AccessToken != "access-2" || st.RefreshToken != "refresh-2" {
		t.Errorf("Expected rotated tokens in memory, got %q/%q", st.AccessToken, st.RefreshToken)
	}
	stored, _ := f.tokens.Tokens(context.Background())
	if stored.AccessToken != "access-2" {
		t.Errorf("Expected rotated token persisted, got %q", stored.AccessToken)
	}
}

func TestRefreshFailure_ClearsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.backend.mu.Lock()
	f.backend.validAccess = "something-else"
	f.backend.refreshFails = true
	f.backend.mu.Unlock()

	_, err := f.store.FetchProfile(context.Background())
	if api.MessageOf(err) != "Refresh token expired" {
		t.Fatalf("Expected the refresh error, got %v", err)
	}

	st := f.store.Snapshot()
	if st.IsAuthenticated || st.AccessToken != "" || st.User != nil {
		t.Errorf("Expected session cleared, got %+v", st)
	}
	stored, _ := f.tokens.Tokens(context.Background())
	if stored.AccessToken != "" || stored.RefreshToken != "" {
		t.Errorf("Expected stored tokens cleared, got %+v", stored)
	}
}

func TestHydrate(t *testing.T) {
	user := &models.UserProfile{ID: "u1", Email: "a@b.com"}

	tests := []struct {
		name         string
		tokens       models.AuthTokens
		snap         *storage.Snapshot
		validAccess  string
		refreshFails bool
		wantAuth     bool
		wantToken    string
		wantPhone    string
	}{
		{
			name:   "nothing stored",
			tokens: models.AuthTokens{},
		},
		{
			name:   "snapshot authenticated but token store empty",
			tokens: models.AuthTokens{},
			snap:   &storage.Snapshot{User: user, IsAuthenticated: true, AccessToken: "a", RefreshToken: "r"},
		},
		{
			name:   "access token without refresh token",
			tokens: models.AuthTokens{AccessToken: "a"},
			snap:   &storage.Snapshot{User: user, IsAuthenticated: true, AccessToken: "a"},
		},
		{
			name:        "tokens without a snapshot rebuild the profile",
			tokens:      models.AuthTokens{AccessToken: "access-1", RefreshToken: "refresh-1"},
			validAccess: "access-1",
			wantAuth:    true,
			wantToken:   "access-1",
			wantPhone:   "555",
		},
		{
			name:      "tokens without a snapshot user refresh when expired",
			tokens:    models.AuthTokens{AccessToken: "access-1", RefreshToken: "refresh-1"},
			snap:      &storage.Snapshot{HasFinishedOnboarding: true},
			wantAuth:  true,
			wantToken: "access-2",
			wantPhone: "555",
		},
		{
			name:         "tokens without a snapshot rejected by the backend",
			tokens:       models.AuthTokens{AccessToken: "access-1", RefreshToken: "refresh-1"},
			refreshFails: true,
		},
		{
			name:      "token store wins over snapshot tokens",
			tokens:    models.AuthTokens{AccessToken: "fresh", RefreshToken: "r2"},
			snap:      &storage.Snapshot{User: user, IsAuthenticated: true, AccessToken: "stale", RefreshToken: "r1"},
			wantAuth:  true,
			wantToken: "fresh",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.backend.validAccess = tc.validAccess
			f.backend.refreshFails = tc.refreshFails
			ctx := context.Background()

			if tc.tokens.AccessToken != "" {
				f.tokens.Save(ctx, tc.tokens)
			}
			if tc.snap != nil {
				f.snapshots.Save(ctx, *tc.snap)
			}

			if err := f.store.Hydrate(ctx); err != nil {
				t.Fatalf("Hydrate failed: %v", err)
			}

			st := f.store.Snapshot()
			if st.IsAuthenticated != tc.wantAuth {
				t.Fatalf("Expected authenticated=%v, got %+v", tc.wantAuth, st)
			}
			if st.AccessToken != tc.wantToken {
				t.Errorf("Expected access token %q, got %q", tc.wantToken, st.AccessToken)
			}
			if stored, _ := f.tokens.AccessToken(ctx); stored != tc.wantToken {
				t.Errorf("Expected stored access token %q, got %q", tc.wantToken, stored)
			}

			snap, _ := f.snapshots.Load(ctx)
			if !tc.wantAuth {
				if snap != nil && snap.IsAuthenticated {
					t.Error("Expected inconsistent snapshot cleared")
				}
				return
			}
			if snap == nil || snap.AccessToken != tc.wantToken || snap.User == nil {
				t.Errorf("Expected snapshot reconciled with token store, got %+v", snap)
			}
			if tc.wantPhone != "" && st.User.Phone != tc.wantPhone {
				t.Errorf("Expected profile rebuilt from the backend, got %+v", st.User)
			}
			if tc.snap != nil && tc.snap.HasFinishedOnboarding && !st.HasFinishedOnboarding {
				t.Error("Expected onboarding flag kept from the snapshot")
			}
		})
	}
}

func TestHydrate_KeepsTokensWhenBackendUnreachable(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	tokens := storage.NewTokenStore(storage.NewMemoryKV())
	tokens.Save(ctx, models.AuthTokens{AccessToken: "access-1", RefreshToken: "refresh-1"})
	store := New(api.New(baseURL), tokens, storage.NewSnapshotStore(storage.NewMemoryKV()), logging.Discard())

	if err := store.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if st := store.Snapshot(); st.IsAuthenticated || st.AccessToken != "" {
		t.Errorf("Expected signed out for this run, got %+v", st)
	}
	stored, _ := tokens.Tokens(ctx)
	if stored.AccessToken != "access-1" || stored.RefreshToken != "refresh-1" {
		t.Errorf("Expected tokens kept for the next launch, got %+v", stored)
	}
}

func TestHydrate_KeepsOnboardingFlagWhenLoggedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.snapshots.Save(ctx, storage.Snapshot{HasFinishedOnboarding: true})

	if err := f.store.Hydrate(ctx); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	st := f.store.Snapshot()
	if st.IsAuthenticated || !st.HasFinishedOnboarding {
		t.Errorf("Expected logged out with onboarding done, got %+v", st)
	}
}

// failingKV fails every read, standing in for an unavailable keychain.
type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, error) {
	return "", errors.New("keychain locked")
}
func (failingKV) Set(context.Context, string, string) error { return nil }
func (failingKV) Delete(context.Context, ...string) error   { return nil }

func TestAccessToken_FallsBackToMemory(t *testing.T) {
	client := api.New("http://unused")
	store := New(client, storage.NewTokenStore(failingKV{}), storage.NewSnapshotStore(storage.NewMemoryKV()), logging.Discard())

	store.update(func(st *State) {
		st.AccessToken = "in-memory"
		st.RefreshToken = "r"
		st.User = &models.UserProfile{ID: "u1"}
		st.IsAuthenticated = true
	})

	token, _ := store.AccessToken(context.Background())
	if token != "in-memory" {
		t.Errorf("Expected in-memory fallback, got %q", token)
	}
}

func TestAccessToken_BrokenInvariantForcesLogout(t *testing.T) {
	f := newFixture(t)
	f.store.update(func(st *State) {
		st.IsAuthenticated = true
		st.AccessToken = "a"
	})

	token, _ := f.store.AccessToken(context.Background())
	if token != "" {
		t.Errorf("Expected no token after forced logout, got %q", token)
	}
	if f.store.Snapshot().IsAuthenticated {
		t.Error("Expected forced logout")
	}
}

func TestSubscribe_ReceivesLatestState(t *testing.T) {
	f := newFixture(t)
	updates, cancel := f.store.Subscribe()
	defer cancel()

	f.login(t)

	st := <-updates
	if !st.IsAuthenticated {
		t.Errorf("Expected latest state to be authenticated, got %+v", st)
	}

	cancel()
	if _, ok := <-updates; ok {
		t.Error("Expected channel closed after cancel")
	}
}
