package handlers

import (
	"fmt"
	"net/http"

	"github.com/tar-bin/udoris-core/internal/logger"
)

// PublicHandlerFunc は認証不要のヘルスチェックです。
// GET /api/public
func PublicHandlerFunc(w http.ResponseWriter, r *http.Request) {
	logger.Log.Debug("[PublicHandler] /api/public")
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "udoris-core is running (public content)")
}
