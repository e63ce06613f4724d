package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/poiesic/marketsearch/ai/mock"
	"github.com/poiesic/marketsearch/api"
	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"github.com/poiesic/marketsearch/index/indextest"
	"github.com/poiesic/marketsearch/rebuild"
	"github.com/poiesic/marketsearch/search"
	"github.com/poiesic/marketsearch/storage"
	"github.com/poiesic/marketsearch/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	internalToken = "service-token"
	jwtSecret     = "test-secret"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	repos    *storage.Repositories
	indexer  *index.Indexer
	source   *indextest.Source
	rebuilds *rebuild.Manager
	router   http.Handler
}

func newFixture(t *testing.T, withRebuilds bool) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	embedder := mock.NewMockEmbedder(4).
		WithVector("Tomatoes Fresh from the farm", []float32{1, 0, 0, 0}).
		WithVector("Bread Baked daily", []float32{0, 1, 0, 0}).
		WithVector("tomato", []float32{1, 0.1, 0, 0}).
		WithVector("zzz", []float32{-1, -1, 0, 0})
	provider := mock.NewMockProviderWithEmbedder(embedder)

	ix, err := index.NewIndexer(repos.Index, provider)
	require.NoError(t, err)
	source := indextest.NewSource(
		&indextest.Entity{Kind: "product", ID: "1", Title: "Tomatoes", Description: "Fresh from the farm", Metadata: map[string]any{"price": 50.0}},
		&indextest.Entity{Kind: "product", ID: "2", Title: "Bread", Description: "Baked daily", Metadata: map[string]any{"price": 150.0}},
		&indextest.Entity{Kind: "product", ID: "3", Err: errors.New("missing name")},
	)
	require.NoError(t, ix.Registry().Register("product", source))
	require.NoError(t, ix.Registry().Register("service", indextest.NewSource()))
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		_, err := ix.IndexKey(ctx, "product", id)
		require.NoError(t, err)
	}

	searcher, err := search.NewSearcher(repos.Index, provider, search.WithQueryLog(repos.QueryLogs))
	require.NoError(t, err)

	opts := []api.Option{api.WithAuth(api.AuthConfig{InternalToken: internalToken, JWTSecret: jwtSecret})}
	f := &fixture{repos: repos, indexer: ix, source: source}
	if withRebuilds {
		config := &rebuild.Config{BatchSize: 2, ReportInterval: 10, MaxRetries: 1, RetryDelay: time.Millisecond, PoolSize: 1}
		f.rebuilds, err = rebuild.NewManager(ix, repos.Checkpoints, rebuild.WithConfig(config))
		require.NoError(t, err)
		t.Cleanup(f.rebuilds.Release)
		opts = append(opts, api.WithRebuilds(f.rebuilds))
	}
	server, err := api.NewServer(searcher, ix, opts...)
	require.NoError(t, err)
	f.router = server.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

type searchBody struct {
	Results []struct {
		ID          uint64         `json:"id"`
		Title       string         `json:"title"`
		Metadata    map[string]any `json:"metadata"`
		Distance    *float64       `json:"distance"`
		FoundObject struct {
			Kind           string `json:"kind"`
			ID             string `json:"id"`
			Representation string `json:"representation"`
		} `json:"found_object"`
	} `json:"results"`
	Found    bool   `json:"found"`
	Message  string `json:"message"`
	Strategy string `json:"strategy"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := api.NewServer(nil, nil)
	assert.ErrorIs(t, err, api.ErrSearcherRequired)

	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	searcher, err := search.NewSearcher(repos.Index, mock.NewMockProvider(4))
	require.NoError(t, err)
	_, err = api.NewServer(searcher, nil)
	assert.ErrorIs(t, err, api.ErrIndexerRequired)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSearch_VectorMatches(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/search?q=tomato", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[searchBody](t, rec)
	assert.True(t, body.Found)
	assert.Equal(t, "Matches found", body.Message)
	assert.Equal(t, "vector", body.Strategy)
	require.NotEmpty(t, body.Results)
	first := body.Results[0]
	assert.Equal(t, "Tomatoes", first.Title)
	require.NotNil(t, first.Distance)
	assert.Equal(t, "product", first.FoundObject.Kind)
	assert.Equal(t, "1", first.FoundObject.ID)
	assert.Equal(t, "Product: Tomatoes", first.FoundObject.Representation)
	assert.Equal(t, 50.0, first.Metadata["price"])

	logs, err := f.repos.QueryLogs.RecentQueryLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestSearch_RecordsBearerSubject(t *testing.T) {
	tests := []struct {
		name string
		auth string
		want string
	}{
		{name: "anonymous", auth: "", want: ""},
		{name: "buyer token", auth: signToken(t, jwt.MapClaims{"sub": "42", "role": "buyer"}), want: "42"},
		{name: "invalid token", auth: "Bearer not-a-jwt", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec := f.do(t, http.MethodGet, "/search?q=tomato", nil, tt.auth)
			require.Equal(t, http.StatusOK, rec.Code)

			logs, err := f.repos.QueryLogs.RecentQueryLogs(context.Background(), 1)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Equal(t, tt.want, logs[0].UserID)
		})
	}
}

func TestSearch_MetadataFilter(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/search?q=tomato&metadata.price.gt=100", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[searchBody](t, rec)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Bread", body.Results[0].Title)
}

func TestSearch_NoMatchesReturnsSample(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/search?q=zzz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[searchBody](t, rec)
	assert.False(t, body.Found)
	assert.Equal(t, "sample", body.Strategy)
	assert.Equal(t, "No exact matches for 'zzz'. Here are some available products.", body.Message)
	assert.Len(t, body.Results, 2)
	for _, r := range body.Results {
		assert.Nil(t, r.Distance)
	}
}

func TestSearch_SampleRespectsType(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/search?type=service", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[searchBody](t, rec)
	assert.False(t, body.Found)
	assert.Equal(t, "Discover our products.", body.Message)
	assert.Empty(t, body.Results)
}

func TestSearch_InvalidLimit(t *testing.T) {
	f := newFixture(t, false)
	for _, limit := range []string{"abc", "0", "-3"} {
		t.Run(limit, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/search?q=tomato&limit="+limit, nil, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[api.ErrorEnvelope](t, rec)
			assert.Equal(t, "invalid_limit", body.Error.Code)
		})
	}
}

func TestSearch_Limit(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(t, http.MethodGet, "/search?q=tomato&limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[searchBody](t, rec).Results, 1)
}

func TestAdmin_Auth(t *testing.T) {
	f := newFixture(t, false)
	body := map[string]string{"kind": "product", "id": "1"}

	tests := []struct {
		name string
		auth string
		want int
	}{
		{name: "missing", auth: "", want: http.StatusUnauthorized},
		{name: "wrong token", auth: "Token nope", want: http.StatusUnauthorized},
		{name: "internal token", auth: "Token " + internalToken, want: http.StatusCreated},
		{name: "admin role", auth: signToken(t, jwt.MapClaims{"sub": "7", "role": "admin"}), want: http.StatusCreated},
		{name: "staff", auth: signToken(t, jwt.MapClaims{"sub": "8", "is_staff": true}), want: http.StatusCreated},
		{name: "not admin", auth: signToken(t, jwt.MapClaims{"sub": "9", "role": "buyer"}), want: http.StatusForbidden},
		{name: "expired", auth: signToken(t, jwt.MapClaims{"role": "admin", "exp": time.Now().Add(-time.Hour).Unix()}), want: http.StatusUnauthorized},
		{name: "bad signature", auth: "Bearer " + mustSign(t, "other-secret"), want: http.StatusUnauthorized},
		{name: "unknown scheme", auth: "Basic dXNlcjpwYXNz", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/admin/index", body, tt.auth)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func mustSign(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.MapClaims{"role": "admin", "exp": time.Now().Add(time.Hour).Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdmin_IndexEntity(t *testing.T) {
	f := newFixture(t, false)
	auth := "Token " + internalToken

	tests := []struct {
		name string
		body map[string]string
		want int
		code string
	}{
		{name: "indexed", body: map[string]string{"kind": "product", "id": "1"}, want: http.StatusCreated},
		{name: "missing entity", body: map[string]string{"kind": "product", "id": "99"}, want: http.StatusNotFound, code: "not_found"},
		{name: "unknown kind", body: map[string]string{"kind": "vehicle", "id": "1"}, want: http.StatusBadRequest, code: "unknown_kind"},
		{name: "invalid entity", body: map[string]string{"kind": "product", "id": "3"}, want: http.StatusUnprocessableEntity, code: "invalid_entity"},
		{name: "missing fields", body: map[string]string{"kind": "product"}, want: http.StatusBadRequest, code: "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/admin/index", tt.body, auth)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode[api.ErrorEnvelope](t, rec).Error.Code)
			}
		})
	}
}

func TestAdmin_DeleteEntry(t *testing.T) {
	f := newFixture(t, false)
	auth := "Token " + internalToken
	ctx := context.Background()

	entry, err := f.repos.Index.GetBySource(ctx, "product", "1")
	require.NoError(t, err)

	target := "/admin/index-entry/" + jsonNumber(entry.Id)
	rec := f.do(t, http.MethodDelete, target, nil, auth)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = f.repos.Index.GetBySource(ctx, "product", "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rec = f.do(t, http.MethodDelete, target, nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/admin/index-entry/abc", nil, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonNumber(id core.ID) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}

func TestAdmin_RebuildWithoutManager(t *testing.T) {
	f := newFixture(t, false)
	auth := "Token " + internalToken

	rec := f.do(t, http.MethodPost, "/admin/rebuild", map[string]any{"kind": "product"}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, 2.0, body["indexed"])

	rec = f.do(t, http.MethodPost, "/admin/rebuild", map[string]any{"kind": "product", "background": true}, auth)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/rebuild", map[string]any{"kind": "vehicle"}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/rebuild/some-job", nil, auth)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

type jobBody struct {
	JobID   string `json:"job_id"`
	Kind    string `json:"kind"`
	State   string `json:"state"`
	Indexed int    `json:"indexed"`
	Skipped int    `json:"skipped"`
}

func TestAdmin_RebuildJobs(t *testing.T) {
	f := newFixture(t, true)
	auth := "Token " + internalToken

	rec := f.do(t, http.MethodPost, "/admin/rebuild", map[string]any{"kind": "product"}, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	job := decode[jobBody](t, rec)
	assert.Equal(t, "completed", job.State)
	assert.Equal(t, 2, job.Indexed)
	assert.Equal(t, 1, job.Skipped)

	rec = f.do(t, http.MethodPost, "/admin/rebuild", map[string]any{"kind": "product", "background": true}, auth)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	job = decode[jobBody](t, rec)
	assert.NotEmpty(t, job.JobID)
	f.rebuilds.Wait()

	rec = f.do(t, http.MethodGet, "/admin/rebuild/"+job.JobID, nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[jobBody](t, rec).State)

	rec = f.do(t, http.MethodGet, "/admin/rebuild", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Jobs []jobBody `json:"jobs"`
	}](t, rec)
	assert.Len(t, list.Jobs, 2)

	rec = f.do(t, http.MethodDelete, "/admin/rebuild/"+job.JobID, nil, auth)
	assert.Equal(t, http.StatusConflict, rec.Code, "finished jobs cannot be cancelled")
	rec = f.do(t, http.MethodPost, "/admin/rebuild/"+job.JobID+"/resume", nil, auth)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/rebuild/missing", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodPost, "/admin/rebuild/missing/resume", nil, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	unlock := f.indexer.Locks().Lock("product")
	rec = f.do(t, http.MethodPost, "/admin/rebuild", map[string]any{"kind": "product", "background": true}, auth)
	assert.Equal(t, http.StatusConflict, rec.Code)
	unlock()
}

func TestAdmin_CancelPendingJob(t *testing.T) {
	f := newFixture(t, true)
	auth := "Token " + internalToken
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, f.repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{
		JobID: "stale", SourceKind: "product", State: core.JobRunning, StartedAt: now, UpdatedAt: now,
	}))

	rec := f.do(t, http.MethodDelete, "/admin/rebuild/stale", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[jobBody](t, rec).State)

	rec = f.do(t, http.MethodPost, "/admin/rebuild/stale/resume", nil, auth)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	f.rebuilds.Wait()

	cp, err := f.rebuilds.Status(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, core.JobCompleted, cp.State)
}
