package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosmicwatch/neo-watch-service/internal/api"
	"github.com/cosmicwatch/neo-watch-service/internal/auth"
	"github.com/cosmicwatch/neo-watch-service/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockReader struct {
	asteroids []domain.AsteroidSummary
	stats     domain.Stats
	analysis  domain.RiskAnalysis
	err       error
}

func (m *mockReader) Asteroids(_ context.Context) ([]domain.AsteroidSummary, error) {
	return m.asteroids, m.err
}

func (m *mockReader) Stats(_ context.Context) (domain.Stats, error) {
	return m.stats, m.err
}

func (m *mockReader) RiskAnalysis(_ context.Context, _ int64) (domain.RiskAnalysis, error) {
	return m.analysis, m.err
}

type mockIngestor struct {
	result domain.IngestResult
	err    error
}

func (m *mockIngestor) Run(_ context.Context) (domain.IngestResult, error) {
	return m.result, m.err
}

type mockUserStore struct {
	users map[string]domain.User
	err   error
}

func (m *mockUserStore) CreateUser(_ context.Context, u domain.User) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	if _, taken := m.users[u.Email]; taken {
		return domain.User{}, domain.ErrEmailTaken
	}
	u.ID = int64(len(m.users) + 1)
	m.users[u.Email] = u
	return u, nil
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	if m.err != nil {
		return domain.User{}, m.err
	}
	u, ok := m.users[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type mockWatchlist struct {
	entries map[int64][]domain.WatchlistEntry
	addErr  error
	delErr  error
}

func (m *mockWatchlist) AddToWatchlist(_ context.Context, userID, asteroidID int64) (bool, error) {
	if m.addErr != nil {
		return false, m.addErr
	}
	for _, e := range m.entries[userID] {
		if e.ID == asteroidID {
			return false, nil
		}
	}
	m.entries[userID] = append(m.entries[userID], domain.WatchlistEntry{ID: asteroidID})
	return true, nil
}

func (m *mockWatchlist) Watchlist(_ context.Context, userID int64) ([]domain.WatchlistEntry, error) {
	return m.entries[userID], nil
}

func (m *mockWatchlist) RemoveFromWatchlist(_ context.Context, _, _ int64) error {
	return m.delErr
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type fixture struct {
	reader    *mockReader
	ingestor  *mockIngestor
	users     *mockUserStore
	watchlist *mockWatchlist
	pinger    *mockPinger
	tokens    *auth.TokenProvider
	server    *api.Server
}

func newFixture() *fixture {
	f := &fixture{
		reader:    &mockReader{},
		ingestor:  &mockIngestor{},
		users:     &mockUserStore{users: map[string]domain.User{}},
		watchlist: &mockWatchlist{entries: map[int64][]domain.WatchlistEntry{}},
		pinger:    &mockPinger{},
		tokens:    auth.NewTokenProvider("test-secret", time.Hour, clockwork.NewRealClock()),
	}
	wsStub := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusSwitchingProtocols) }
	f.server = api.NewServer(
		f.reader, f.ingestor, f.users, f.watchlist,
		auth.NewHasher(4), f.tokens, f.pinger, wsStub, slog.Default(),
	)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRegister_CreatesAccountAndReturnsToken(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/register",
		`{"full_name":"Ada Lovelace","email":"Ada@Example.com","password":"correct horse"}`, "")

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["token"])

	user := body["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"], "emails are normalized to lower case")
	assert.NotContains(t, user, "password_hash")
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture()
	payload := `{"full_name":"Ada","email":"ada@example.com","password":"correct horse"}`

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/register", payload, "").Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/register", payload, "").Code)
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/register",
		`{"full_name":"Ada","email":"ada@example.com","password":"short"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_ValidCredentialsReturnToken(t *testing.T) {
	f := newFixture()
	f.do(t, http.MethodPost, "/api/register",
		`{"full_name":"Ada","email":"ada@example.com","password":"correct horse"}`, "")

	rec := f.do(t, http.MethodPost, "/api/login",
		`{"email":"ada@example.com","password":"correct horse"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["token"])
}

func TestLogin_WrongPasswordUnauthorized(t *testing.T) {
	f := newFixture()
	f.do(t, http.MethodPost, "/api/register",
		`{"full_name":"Ada","email":"ada@example.com","password":"correct horse"}`, "")

	rec := f.do(t, http.MethodPost, "/api/login",
		`{"email":"ada@example.com","password":"wrong password"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_UnknownEmailUnauthorized(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/login",
		`{"email":"nobody@example.com","password":"whatever!"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAsteroids_ReturnsSummaries(t *testing.T) {
	f := newFixture()
	f.reader.asteroids = []domain.AsteroidSummary{
		{ID: 3542519, Name: "(2010 PK9)", RiskScore: 0.8125},
	}

	rec := f.do(t, http.MethodGet, "/api/asteroids", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []domain.AsteroidSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(3542519), got[0].ID)
}

func TestStats_ReturnsAggregates(t *testing.T) {
	f := newFixture()
	f.reader.stats = domain.Stats{TotalNEOs: 42, HazardousCount: 7}

	rec := f.do(t, http.MethodGet, "/api/stats", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 42, got.TotalNEOs)
}

func TestRiskAnalysis_UnknownAsteroidNotFound(t *testing.T) {
	f := newFixture()
	f.reader.err = domain.ErrNotFound

	rec := f.do(t, http.MethodGet, "/api/risk-analysis/999", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRiskAnalysis_NonNumericIDRejected(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/risk-analysis/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchAsteroids_ReportsIngestResult(t *testing.T) {
	f := newFixture()
	f.ingestor.result = domain.IngestResult{AsteroidsSeen: 12, ApproachesInserted: 15}

	rec := f.do(t, http.MethodGet, "/api/fetch-asteroids", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	result := body["result"].(map[string]any)
	assert.InDelta(t, 12, result["asteroids_seen"], 0)
}

func TestFetchAsteroids_ConflictWhileRunning(t *testing.T) {
	f := newFixture()
	f.ingestor.err = domain.ErrIngestRunning

	rec := f.do(t, http.MethodGet, "/api/fetch-asteroids", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFetchAsteroids_UpstreamFailureIsBadGateway(t *testing.T) {
	f := newFixture()
	f.ingestor.err = &domain.FetchError{Err: errors.New("dns failure")}

	rec := f.do(t, http.MethodGet, "/api/fetch-asteroids", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFetchAsteroids_StorageFailureIsUnavailable(t *testing.T) {
	f := newFixture()
	f.ingestor.err = &domain.StorageError{Op: "commit tx", Err: errors.New("down")}

	rec := f.do(t, http.MethodGet, "/api/fetch-asteroids", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWatchlist_RequiresToken(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/watchlist", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(t, http.MethodPost, "/api/watchlist", `{"asteroid_id":1}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		f.do(t, http.MethodGet, "/api/watchlist", "", "garbage-token").Code)
}

func TestWatchlist_AddAndListRoundTrip(t *testing.T) {
	f := newFixture()
	token, err := f.tokens.Issue(1, "user")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/watchlist", `{"asteroid_id":3542519}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/watchlist", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []domain.WatchlistEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(3542519), entries[0].ID)
}

func TestWatchlistAdd_RepeatIsOKNotCreated(t *testing.T) {
	f := newFixture()
	token, err := f.tokens.Issue(1, "user")
	require.NoError(t, err)

	first := f.do(t, http.MethodPost, "/api/watchlist", `{"asteroid_id":3542519}`, token)
	require.Equal(t, http.StatusCreated, first.Code)

	second := f.do(t, http.MethodPost, "/api/watchlist", `{"asteroid_id":3542519}`, token)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "already in watchlist", decode(t, second)["message"])

	rec := f.do(t, http.MethodGet, "/api/watchlist", "", token)
	var entries []domain.WatchlistEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestWatchlistAdd_UnknownAsteroidNotFound(t *testing.T) {
	f := newFixture()
	f.watchlist.addErr = domain.ErrNotFound
	token, err := f.tokens.Issue(1, "user")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/watchlist", `{"asteroid_id":999}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchlistRemove_MissingEntryNotFound(t *testing.T) {
	f := newFixture()
	f.watchlist.delErr = domain.ErrNotFound
	token, err := f.tokens.Issue(1, "user")
	require.NoError(t, err)

	rec := f.do(t, http.MethodDelete, "/api/watchlist/42", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadyz_DegradedWhenStoreUnreachable(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", "", "").Code)

	f.pinger.err = &domain.StorageError{Op: "ping", Err: errors.New("refused")}
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/readyz", "", "").Code)
}

func TestHealthz_AlwaysOK(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", "").Code)
}
