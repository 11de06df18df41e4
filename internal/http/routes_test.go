package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accountdesk/accountdesk/internal/adapters/authroles"
	domainauth "github.com/accountdesk/accountdesk/internal/domain/auth"
	"github.com/accountdesk/accountdesk/internal/domain/model"
	mocks "github.com/accountdesk/accountdesk/internal/mocks/auth"
	"github.com/accountdesk/accountdesk/internal/service"
)

const (
	adminID    = "user-admin"
	adminEmail = "admin@example.com"
	plainID    = "user-plain"
	plainEmail = "plain@example.com"
	password   = "secret123"
)

type testAPI struct {
	handler  http.Handler
	sessions *service.SessionStore
	provider *mocks.FakeIdentityProvider
	profiles *mocks.MemoryProfileStore
}

func newTestAPI(t *testing.T, start bool) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider := mocks.NewFakeIdentityProvider()
	provider.AddAccount(adminEmail, mocks.Account{UserID: adminID, Password: password})
	provider.AddAccount(plainEmail, mocks.Account{UserID: plainID, Password: password})

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	profiles := mocks.NewMemoryProfileStore(
		&model.Profile{ID: adminID, Email: adminEmail, FullName: "Ada Admin", IsAdmin: true, CreatedAt: created, UpdatedAt: created},
		&model.Profile{ID: plainID, Email: plainEmail, FullName: "Paul Plain", CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour)},
	)

	resolver := service.NewAuthorizationResolver(service.AuthorizationResolverOptions{
		Profiles: profiles,
		Roles:    authroles.ProfileRoleMapper{},
		Config:   service.AuthorizationConfig{TTL: time.Minute, Logger: logger},
	})
	sessions := service.NewSessionStore(service.SessionStoreOptions{
		Provider: provider,
		Resolver: resolver,
		Config:   service.SessionStoreConfig{Logger: logger},
	})
	t.Cleanup(sessions.Close)
	notices := service.NewNoticeBoard(time.Hour)

	handler := NewRouter(RouterServices{
		Sessions: sessions,
		Auth: service.NewAuthService(service.AuthServiceOptions{
			Provider: provider,
			Sessions: sessions,
			Deps:     service.AuthServiceDeps{Profiles: profiles, Notices: notices, Logger: logger},
		}),
		Profiles: service.NewProfileService(service.ProfileServiceOptions{
			Profiles: profiles,
			Sessions: sessions,
			Deps:     service.ProfileServiceDeps{Avatars: &mocks.MemoryAvatarStore{}, Notices: notices, Logger: logger},
		}),
		Admin: service.NewAdminService(service.AdminServiceOptions{
			Profiles: profiles,
			Sessions: sessions,
			Deps:     service.AdminServiceDeps{Notices: notices, Logger: logger},
		}),
		Notices: notices,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
		Logger:  logger,
	})

	if start {
		_, err := sessions.Start(context.Background())
		require.NoError(t, err)
	}
	return &testAPI{handler: handler, sessions: sessions, provider: provider, profiles: profiles}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) signIn(t *testing.T, email string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/sign-in", signInRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, true)

	rec := api.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = api.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GatedWhileInitializing(t *testing.T) {
	api := newTestAPI(t, false)

	st := decode[domainauth.State](t, api.do(t, http.MethodGet, "/session", nil))
	assert.Equal(t, domainauth.PhaseInitializing, st.Phase)

	rec := api.do(t, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRouter_SignInFlow(t *testing.T) {
	api := newTestAPI(t, true)

	rec := api.do(t, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/sign-in", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/sign-in", signInRequest{Email: plainEmail, Password: "nope"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "credential", body.Error)
	assert.Equal(t, "Invalid email or password", body.Message)

	rec = api.do(t, http.MethodPost, "/auth/sign-in", signInRequest{Email: plainEmail, Password: password})
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[domainauth.State](t, rec)
	assert.True(t, st.Authenticated())
	assert.False(t, st.IsAdmin)

	rec = api.do(t, http.MethodGet, "/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prof := decode[profileResponse](t, rec)
	require.NotNil(t, prof.Profile)
	assert.Equal(t, "Paul Plain", prof.Profile.FullName)
	assert.Equal(t, 75, prof.Completeness)

	rec = api.do(t, http.MethodPost, "/auth/sign-out", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st = decode[domainauth.State](t, rec)
	assert.Equal(t, domainauth.PhaseUnauthenticated, st.Phase)

	rec = api.do(t, http.MethodGet, "/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_SignUp(t *testing.T) {
	api := newTestAPI(t, true)

	rec := api.do(t, http.MethodPost, "/auth/sign-up", model.RegistrationInput{
		FullName: "New Person", Email: "new@example.com", Password: "abc", ConfirmPassword: "abc",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/sign-up", model.RegistrationInput{
		FullName: "New Person", Email: "new@example.com", Password: password, ConfirmPassword: password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[signUpResponse](t, rec)
	assert.True(t, res.State.Authenticated())
	require.NotNil(t, res.Profile)
	assert.Equal(t, "New Person", res.Profile.FullName)
	assert.False(t, res.Profile.IsAdmin)
}

func TestRouter_ProfileUpdateAndNotice(t *testing.T) {
	api := newTestAPI(t, true)
	api.signIn(t, plainEmail)

	rec := api.do(t, http.MethodGet, "/notices", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodPatch, "/profile", map[string]string{"full_name": "Paula Plain", "bio": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prof := decode[profileResponse](t, rec)
	assert.Equal(t, "Paula Plain", prof.Profile.FullName)
	assert.Equal(t, plainEmail, prof.Profile.Email)

	rec = api.do(t, http.MethodPatch, "/profile", map[string]any{"is_admin": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "admin flag is not settable here")

	rec = api.do(t, http.MethodGet, "/notices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	n := decode[service.Notice](t, rec)
	assert.Equal(t, service.NoticeSuccess, n.Kind)

	rec = api.do(t, http.MethodDelete, "/notices", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNoContent, api.do(t, http.MethodGet, "/notices", nil).Code)
}

func TestRouter_AvatarUpload(t *testing.T) {
	api := newTestAPI(t, true)
	api.signIn(t, plainEmail)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	req := httptest.NewRequest(http.MethodPut, "/profile/avatar", bytes.NewReader(png))
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prof := decode[profileResponse](t, rec)
	assert.Equal(t, "https://avatars.test/"+plainID, prof.Profile.AvatarURL)

	req = httptest.NewRequest(http.MethodPut, "/profile/avatar", strings.NewReader("plain text"))
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/profile/avatar", avatarURLRequest{URL: "https://img.example.com/a.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouter_AdminGate(t *testing.T) {
	api := newTestAPI(t, true)
	api.signIn(t, plainEmail)

	rec := api.do(t, http.MethodGet, "/admin/profiles", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodDelete, "/admin/profiles/"+adminID+"?confirm=true", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, ok := api.profiles.Peek(adminID)
	assert.True(t, ok)
}

func TestRouter_AdminConsole(t *testing.T) {
	api := newTestAPI(t, true)
	api.signIn(t, adminEmail)

	rec := api.do(t, http.MethodGet, "/admin/profiles", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[profileListResponse](t, rec)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, plainID, list.Profiles[0].ID, "newest first")

	rec = api.do(t, http.MethodGet, "/admin/profiles?q=PAUL", nil)
	list = decode[profileListResponse](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, plainID, list.Profiles[0].ID)

	stats := decode[model.ProfileStats](t, api.do(t, http.MethodGet, "/admin/stats", nil))
	assert.Equal(t, model.ProfileStats{Total: 2, Admins: 1, Regular: 1}, stats)

	rec = api.do(t, http.MethodPatch, "/admin/profiles/"+plainID, map[string]any{"is_admin": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[model.Profile](t, rec)
	assert.True(t, p.IsAdmin)

	rec = api.do(t, http.MethodDelete, "/admin/profiles/"+plainID, nil)
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
	_, ok := api.profiles.Peek(plainID)
	assert.True(t, ok, "declined confirmation keeps the profile")

	rec = api.do(t, http.MethodDelete, "/admin/profiles/"+plainID+"?confirm=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = api.profiles.Peek(plainID)
	assert.False(t, ok)
}

func TestRouter_SessionStream(t *testing.T) {
	api := newTestAPI(t, true)
	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var st domainauth.State
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, domainauth.PhaseUnauthenticated, st.Phase)

	api.signIn(t, adminEmail)
	for !st.Authenticated() || !st.RoleResolved {
		require.NoError(t, conn.ReadJSON(&st))
	}
	assert.Equal(t, adminID, st.UserID())
	assert.True(t, st.IsAdmin)
}

func TestRouter_SessionStreamRejectsForeignOrigin(t *testing.T) {
	api := newTestAPI(t, true)
	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/session/stream"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
