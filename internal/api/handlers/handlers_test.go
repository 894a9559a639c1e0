package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tar-bin/udoris-core/internal/api/middleware"
	"github.com/tar-bin/udoris-core/internal/config"
	"github.com/tar-bin/udoris-core/internal/database"
	"github.com/tar-bin/udoris-core/internal/services/tetris"
)

func newTestManager(t *testing.T, maxTables int) (*tetris.SessionManager, database.ResultRepository) {
	t.Helper()
	repo := database.NewMemoryResultRepository()
	sm := tetris.NewSessionManager(&config.Config{
		TickRate:           60,
		MaxTables:          maxTables,
		HighScoreSyncTicks: 60,
	}, repo)
	return sm, repo
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestResultHandler_TopAndUserResult(t *testing.T) {
	_, repo := newTestManager(t, 1)
	h := NewResultHandler(repo)
	playerID := uuid.New().String()
	_, err := repo.CreateResult(playerID, "alice", 1200)
	require.NoError(t, err)
	_, err = repo.CreateResult("other", "bob", 300)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.GetTopResults(rec, httptest.NewRequest(http.MethodGet, "/api/results?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	results := decodeBody(t, rec)["results"].([]any)
	require.Len(t, results, 2)
	top := results[0].(map[string]any)
	assert.Equal(t, playerID, top["user_id"])
	assert.Equal(t, "alice", top["name"])
	assert.Equal(t, float64(1200), top["score"])
	assert.Equal(t, float64(1), top["rank"])

	// 範囲外の limit は既定値になる
	rec = httptest.NewRecorder()
	h.GetTopResults(rec, httptest.NewRequest(http.MethodGet, "/api/results?limit=1000", nil))
	assert.Len(t, decodeBody(t, rec)["results"].([]any), 2)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/results/user/"+playerID, nil), map[string]string{"userID": playerID})
	rec = httptest.NewRecorder()
	h.GetUserResult(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["result"].(map[string]any)["rank"])
}

func TestResultHandler_GetUserResultMissing(t *testing.T) {
	_, repo := newTestManager(t, 1)
	h := NewResultHandler(repo)

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/results/user/nobody", nil), map[string]string{"userID": "nobody"})
	rec := httptest.NewRecorder()
	h.GetUserResult(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Nil(t, body["result"])
	assert.Equal(t, true, body["success"])
}

func TestGameHandler_TablesAndField(t *testing.T) {
	sm, _ := newTestManager(t, 2)
	h := NewGameHandler(sm, nil)
	tableID, _, err := sm.OpenTable("p0", "alice")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ListTables(rec, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	tables := decodeBody(t, rec)["tables"].([]any)
	require.Len(t, tables, 1)
	assert.Equal(t, tableID, tables[0].(map[string]any)["table_id"])
	assert.Equal(t, "not_started", tables[0].(map[string]any)["state"])

	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/tables/x/field", nil), map[string]string{"tableID": tableID})
	rec = httptest.NewRecorder()
	h.GetTableField(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "view")
	assert.Len(t, body["tags"].([]any), 20)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/api/tables/x/field", nil), map[string]string{"tableID": "missing"})
	rec = httptest.NewRecorder()
	h.GetTableField(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGameHandler_HandlePlayRejectsBeforeUpgrade(t *testing.T) {
	sm, _ := newTestManager(t, 1)
	h := NewGameHandler(sm, nil)
	play := middleware.PlayerMiddleware(http.HandlerFunc(h.HandlePlay))

	owner := uuid.New().String()
	tableID, _, err := sm.OpenTable(owner, "alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"no free table", "?name=bob", http.StatusServiceUnavailable},
		{"unknown table", "?table_id=missing", http.StatusNotFound},
		{"someone else's table", "?table_id=" + tableID, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/play"+tt.query, nil)
			req.Header.Set(middleware.PlayerIDHeader, uuid.New().String())
			rec := httptest.NewRecorder()
			play.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	assert.Len(t, sm.Tables(), 1, "rejected requests do not open tables")
}

func TestDisplayName(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws/play?name="+strings.Repeat("x", 40), nil)
	assert.Len(t, displayName(req), maxNameLength)
	assert.Equal(t, "Player", displayName(httptest.NewRequest(http.MethodGet, "/ws/play", nil)))
}

func TestPublicHandlerFunc(t *testing.T) {
	rec := httptest.NewRecorder()
	PublicHandlerFunc(rec, httptest.NewRequest(http.MethodGet, "/api/public", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "public content")
}
