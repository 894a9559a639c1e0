package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSHandler はCORS設定を適用するミドルウェアを返します。
func CORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins, // フロントエンドのオリジン
		AllowedMethods:   []string{"GET", "OPTIONS"}, // 書き込み用のAPIはない
		AllowedHeaders:   []string{"Content-Type", PlayerIDHeader},
		AllowCredentials: true,
	})
	return c.Handler
}
