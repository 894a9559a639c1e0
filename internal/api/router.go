package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tar-bin/udoris-core/internal/api/handlers"
	"github.com/tar-bin/udoris-core/internal/api/middleware"
	"github.com/tar-bin/udoris-core/internal/database"
	"github.com/tar-bin/udoris-core/internal/services/tetris"
)

// NewRouter は全エンドポイントを登録したハンドラーを返します。
func NewRouter(sm *tetris.SessionManager, results database.ResultRepository, allowedOrigins []string) http.Handler {
	gameHandler := handlers.NewGameHandler(sm, allowedOrigins)
	resultHandler := handlers.NewResultHandler(results)

	r := mux.NewRouter()
	// 公開エンドポイント (ヘルスチェック)
	r.HandleFunc("/api/public", handlers.PublicHandlerFunc).Methods(http.MethodGet)

	// プレイヤーIDが必要なルート
	// スコアはゲーム終了時に SessionManager が保存するため、書き込み用のルートはない
	r.Handle("/ws/play", withPlayer(gameHandler.HandlePlay)).Methods(http.MethodGet)

	r.HandleFunc("/ws/watch", gameHandler.HandleWatch).Methods(http.MethodGet)
	r.HandleFunc("/api/results", resultHandler.GetTopResults).Methods(http.MethodGet)
	r.HandleFunc("/api/results/user/{userID}", resultHandler.GetUserResult).Methods(http.MethodGet)
	r.HandleFunc("/api/tables", gameHandler.ListTables).Methods(http.MethodGet)
	r.HandleFunc("/api/tables/{tableID}/field", gameHandler.GetTableField).Methods(http.MethodGet)

	return middleware.CORSHandler(allowedOrigins)(r)
}

func withPlayer(h http.HandlerFunc) http.Handler {
	return middleware.PlayerMiddleware(h)
}
