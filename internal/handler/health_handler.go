package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/bookchat/internal/model"
)

// healthTimeout はヘルスチェック1回あたりの上限時間。
const healthTimeout = 2 * time.Second

// HealthChecker はヘルスチェック対象のインターフェース。*sql.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthHandler はDBへの疎通を確認し、結果を返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				writeAPIErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
					Code:    model.ErrCodeInternal,
					Message: "database unavailable: " + err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
