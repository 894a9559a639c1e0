package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tar-bin/udoris-core/internal/api/middleware"
	"github.com/tar-bin/udoris-core/internal/config"
	"github.com/tar-bin/udoris-core/internal/database"
	"github.com/tar-bin/udoris-core/internal/logger"
	"github.com/tar-bin/udoris-core/internal/services/tetris"
)

type testServer struct {
	*httptest.Server
	wsURL   string
	results database.ResultRepository
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	logger.Log.SetOutput(io.Discard)

	repo := database.NewMemoryResultRepository()
	sm := tetris.NewSessionManager(&config.Config{TickRate: 60, MaxTables: 2, HighScoreSyncTicks: 60}, repo)
	ctx, cancel := context.WithCancel(context.Background())
	go sm.Run(ctx)

	srv := httptest.NewServer(NewRouter(sm, repo, []string{"http://localhost:3000"}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{Server: srv, wsURL: "ws" + strings.TrimPrefix(srv.URL, "http"), results: repo}
}

// readUntil は条件に合うメッセージが来るまで読み進めます。
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["type"] == typ }
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// TestRouter_PlayAndWatch はプレイヤーのキー入力で始まったゲームが観戦者とAPIから見えることをテストします。
func TestRouter_PlayAndWatch(t *testing.T) {
	srv := startServer(t)

	watcher, _, err := websocket.DefaultDialer.Dial(srv.wsURL+"/ws/watch", nil)
	require.NoError(t, err)
	defer watcher.Close()

	player, _, err := websocket.DefaultDialer.Dial(srv.wsURL+"/ws/play?name=alice", nil)
	require.NoError(t, err)

	info := readUntil(t, player, ofType("table"))
	tableID := info["table_id"].(string)
	assert.Equal(t, float64(0), info["slot"])
	readUntil(t, player, ofType("music"))

	require.NoError(t, player.WriteJSON(map[string]string{"type": "key_down", "key": "start"}))
	require.NoError(t, player.WriteJSON(map[string]string{"type": "key_up", "key": "start"}))
	readUntil(t, player, func(m map[string]any) bool { return m["type"] == "sound" && m["cue"] == "start" })

	field := readUntil(t, watcher, func(m map[string]any) bool {
		return m["type"] == "field" && m["table_id"] == tableID
	})
	assert.NotEmpty(t, field["wire"])

	tables := getJSON(t, srv.URL+"/api/tables")["tables"].([]any)
	require.Len(t, tables, 1)
	assert.Equal(t, "alice", tables[0].(map[string]any)["name"])

	body := getJSON(t, srv.URL+"/api/tables/"+tableID+"/field")
	assert.Equal(t, tableID, body["table_id"])
	assert.Greater(t, body["view"].(map[string]any)["counter"], float64(0))

	// プレイヤーが切断すると卓が閉じられる
	require.NoError(t, player.Close())
	readUntil(t, watcher, func(m map[string]any) bool {
		return m["type"] == "table_closed" && m["table_id"] == tableID
	})
}

func TestRouter_Results(t *testing.T) {
	srv := startServer(t)
	playerID := uuid.New().String()
	_, err := srv.results.CreateResult(playerID, "bob", 4200)
	require.NoError(t, err)

	body := getJSON(t, srv.URL+"/api/results/user/"+playerID)
	result := body["result"].(map[string]any)
	assert.Equal(t, float64(4200), result["score"])
	assert.Equal(t, float64(1), result["rank"])

	assert.Len(t, getJSON(t, srv.URL+"/api/results")["results"].([]any), 1)

	resp, err := http.Get(srv.URL + "/api/public")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestRouter_ResultsAreReadOnly はクライアントが他人の user_id やスコアを書き込めないことをテストします。
func TestRouter_ResultsAreReadOnly(t *testing.T) {
	srv := startServer(t)
	victim := uuid.New().String()
	_, err := srv.results.CreateResult(victim, "alice", 100)
	require.NoError(t, err)

	forged := `{"user_id":"` + victim + `","name":"alice","score":999999999}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/results", strings.NewReader(forged))
	require.NoError(t, err)
	req.Header.Set(middleware.PlayerIDHeader, uuid.New().String())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	high, err := database.HighScore(srv.results)
	require.NoError(t, err)
	assert.Equal(t, int64(100), high)
	assert.Len(t, getJSON(t, srv.URL+"/api/results")["results"].([]any), 1)
}

func TestRouter_RejectsForeignOrigin(t *testing.T) {
	srv := startServer(t)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(srv.wsURL+"/ws/watch", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
