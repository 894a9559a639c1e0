package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/tar-bin/udoris-core/internal/api/middleware"
	"github.com/tar-bin/udoris-core/internal/logger"
	"github.com/tar-bin/udoris-core/internal/services/tetris"
)

const maxNameLength = 16

// GameHandler はゲーム関連のHTTPリクエスト（卓の作成、WebSocket接続、観戦）を処理します。
type GameHandler struct {
	sessionManager *tetris.SessionManager
	upgrader       websocket.Upgrader
}

// NewGameHandler は新しい GameHandler インスタンスを作成します。
//
// Parameters:
//
//	sm             : セッションマネージャーへのポインタ
//	allowedOrigins : WebSocket接続を許可するオリジン
//
// Returns:
//
//	*GameHandler: 新しく作成された GameHandler のポインタ
func NewGameHandler(sm *tetris.SessionManager, allowedOrigins []string) *GameHandler {
	return &GameHandler{
		sessionManager: sm,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// ブラウザ以外のクライアントは Origin を送らない
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// ExtractPlayerIDFromContext はリクエストのコンテキストからプレイヤーIDを抽出します。
func ExtractPlayerIDFromContext(r *http.Request) (string, error) {
	playerID, ok := middleware.GetPlayerIDFromContext(r.Context())
	if !ok {
		return "", fmt.Errorf("プレイヤーIDがコンテキストに見つかりません")
	}
	return playerID, nil
}

// WriteErrorResponse はエラーレスポンスをJSON形式で書き込みます。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// WriteJSONResponse はJSONレスポンスを書き込みます。
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func displayName(r *http.Request) string {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		return "Player"
	}
	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}
	return name
}

// HandlePlay は卓を用意してWebSocketに切り替え、プレイヤーとして登録します。
// GET /ws/play?name=alice
// GET /ws/play?table_id=... (切断した卓への再接続)
func (h *GameHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	playerID, err := ExtractPlayerIDFromContext(r)
	if err != nil {
		WriteErrorResponse(w, http.StatusUnauthorized, err.Error())
		return
	}

	tableID := r.URL.Query().Get("table_id")
	opened := false
	slot := -1
	if tableID == "" {
		tableID, slot, err = h.sessionManager.OpenTable(playerID, displayName(r))
		if errors.Is(err, tetris.ErrTableFull) {
			WriteErrorResponse(w, http.StatusServiceUnavailable, "空いている卓がありません")
			return
		}
		if err != nil {
			logger.Log.WithError(err).Error("[GameHandler] 卓の作成に失敗しました")
			WriteErrorResponse(w, http.StatusInternalServerError, "卓の作成に失敗しました")
			return
		}
		opened = true
	} else if err := h.sessionManager.CheckTable(tableID, playerID); err != nil {
		switch {
		case errors.Is(err, tetris.ErrTableNotFound):
			WriteErrorResponse(w, http.StatusNotFound, "指定された卓は見つかりませんでした")
		case errors.Is(err, tetris.ErrNotTableOwner):
			WriteErrorResponse(w, http.StatusForbidden, "他のプレイヤーの卓には接続できません")
		default:
			WriteErrorResponse(w, http.StatusInternalServerError, "卓の確認に失敗しました")
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade が失敗時のレスポンスを書き込み済み
		logger.Log.WithError(err).Warnf("[GameHandler] 卓 %s のWebSocketへの切り替えに失敗しました", tableID)
		if opened {
			h.sessionManager.CloseTable(tableID)
		}
		return
	}

	// 書き込みゴルーチンが始まる前に卓の情報を知らせる
	if err := conn.WriteJSON(map[string]any{
		"type":      "table",
		"table_id":  tableID,
		"slot":      slot,
		"player_id": playerID,
	}); err != nil {
		logger.Log.WithError(err).Warn("[GameHandler] 卓の情報を送信できませんでした")
	}

	if err := h.sessionManager.ConnectPlayer(tableID, playerID, conn); err != nil {
		logger.Log.WithError(err).Warnf("[GameHandler] プレイヤー %s を卓 %s に登録できませんでした", playerID, tableID)
		conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
		conn.Close()
		if opened {
			h.sessionManager.CloseTable(tableID)
		}
		return
	}
	logger.Log.WithField("table_id", tableID).Infof("[GameHandler] プレイヤー %s が接続しました", playerID)
}

// HandleWatch はWebSocketに切り替え、全卓の観戦者として登録します。
// GET /ws/watch
func (h *GameHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("[GameHandler] 観戦者のWebSocketへの切り替えに失敗しました")
		return
	}
	if err := h.sessionManager.ConnectWatcher(conn); err != nil {
		logger.Log.WithError(err).Warn("[GameHandler] 観戦者を登録できませんでした")
		conn.Close()
	}
}

// ListTables は開いている卓の一覧を返します。
// GET /api/tables
func (h *GameHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tables":  h.sessionManager.Tables(),
	})
}

// GetTableField は卓の最後に送信された盤面を復元して返します。
// GET /api/tables/{tableID}/field
func (h *GameHandler) GetTableField(w http.ResponseWriter, r *http.Request) {
	tableID := mux.Vars(r)["tableID"]
	if tableID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "卓IDが必要です")
		return
	}

	view, score, err := h.sessionManager.TableField(tableID)
	if errors.Is(err, tetris.ErrTableNotFound) {
		WriteErrorResponse(w, http.StatusNotFound, "指定された卓は見つかりませんでした")
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("[GameHandler] 盤面の取得に失敗しました")
		WriteErrorResponse(w, http.StatusInternalServerError, "盤面の取得に失敗しました")
		return
	}

	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"table_id": tableID,
		"score":    score,
		"view":     view,
		"tags":     view.Tags(),
	})
}
