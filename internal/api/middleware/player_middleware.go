package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tar-bin/udoris-core/internal/logger"
)

// PlayerIDHeader はクライアントが自分のプレイヤーIDを送るヘッダーです。
const PlayerIDHeader = "X-Player-ID"

// PlayerIDKey は Context にプレイヤーIDを格納するキーです。
type PlayerIDKey struct{}

// GetPlayerIDFromContext はコンテキストからプレイヤーIDを取り出します。
func GetPlayerIDFromContext(ctx context.Context) (string, bool) {
	playerID, ok := ctx.Value(PlayerIDKey{}).(string)
	return playerID, ok
}

// writeJSONError はJSON形式のエラーレスポンスを書き込みます
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// PlayerMiddleware はリクエストのプレイヤーIDを決めて Context に設定します。
// ヘッダーかクエリ (player_id) で指定されたIDを使い、無ければ新しいIDを発行します。
// ブラウザの WebSocket はヘッダーを付けられないため、クエリも受け付けます。
func PlayerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		playerID := strings.TrimSpace(r.Header.Get(PlayerIDHeader))
		if playerID == "" {
			playerID = strings.TrimSpace(r.URL.Query().Get("player_id"))
		}

		if playerID == "" {
			playerID = uuid.New().String()
			logger.Log.WithField("player_id", playerID).Debug("[PlayerMiddleware] 新しいプレイヤーIDを発行しました")
		} else if _, err := uuid.Parse(playerID); err != nil {
			logger.Log.WithError(err).Warn("[PlayerMiddleware] 不正なプレイヤーIDです")
			writeJSONError(w, http.StatusBadRequest, "不正なプレイヤーIDです")
			return
		}

		w.Header().Set(PlayerIDHeader, playerID)
		ctx := context.WithValue(r.Context(), PlayerIDKey{}, playerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
