package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/bookchat/internal/chat"
	"github.com/hitoshi/bookchat/internal/model"
	"github.com/hitoshi/bookchat/internal/remotelog"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// MessageServiceInterface はメッセージハンドラーが必要とするサービスインターフェース。
// chat.Service が実装する。
type MessageServiceInterface interface {
	// Timeline はローカルとリモートを統合したタイムラインを返す。
	Timeline(ctx context.Context, limit, offset int) (*chat.Timeline, error)
	// PostMessage はメッセージを保存し、採番されたIDを返す。
	PostMessage(ctx context.Context, userID int64, content string) (int64, error)
	// Search はリモートログを検索する。
	Search(ctx context.Context, query string) remotelog.ListResult
	// Stats はリモートログの統計を返す。
	Stats(ctx context.Context) remotelog.StatsResult
}

// MessageHandler はメッセージのHTTPハンドラー。
type MessageHandler struct {
	service MessageServiceInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(service MessageServiceInterface) *MessageHandler {
	return &MessageHandler{service: service}
}

// postMessageRequest はメッセージ投稿リクエストのボディ。
type postMessageRequest struct {
	UserID  flexInt64 `json:"user_id"`
	Content string    `json:"content"`
}

// messageResponse はタイムラインの1件のAPIレスポンス。
type messageResponse struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	CreatedAt string `json:"created_at"`
	Source    string `json:"source"`
}

type messageListResponse struct {
	Messages []messageResponse `json:"messages"`
}

type searchResponse struct {
	Messages []model.RemoteMessage `json:"messages"`
}

type idResponse struct {
	ID int64 `json:"id"`
}

// ListMessages は統合タイムラインを返す。
// GET /messages?limit=50&offset=0
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntQuery(w, r, "limit", defaultLimit)
	if !ok {
		return
	}
	offset, ok := parseIntQuery(w, r, "offset", 0)
	if !ok {
		return
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	tl, err := h.service.Timeline(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := messageListResponse{Messages: make([]messageResponse, len(tl.Entries))}
	for i, e := range tl.Entries {
		resp.Messages[i] = toMessageResponse(e)
	}

	w.Header().Set(remoteStatusHeader, string(tl.RemoteStatus))
	writeJSON(w, http.StatusOK, resp)
}

// PostMessage はメッセージを投稿する。
// POST /messages
func (h *MessageHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var missing []string
	if !req.UserID.Valid {
		missing = append(missing, "user_id")
	}
	if req.Content == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldsError(missing...))
		return
	}

	id, err := h.service.PostMessage(r.Context(), req.UserID.Value, req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// SearchMessages はリモートログのメッセージを検索する。
// GET /messages/search?q=...
func (h *MessageHandler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	res := h.service.Search(r.Context(), r.URL.Query().Get("q"))

	messages := res.Messages
	if messages == nil {
		messages = []model.RemoteMessage{}
	}

	w.Header().Set(remoteStatusHeader, string(res.Status))
	writeJSON(w, http.StatusOK, searchResponse{Messages: messages})
}

// MessageStats はリモートログのメッセージ統計を返す。
// GET /messages/stats
func (h *MessageHandler) MessageStats(w http.ResponseWriter, r *http.Request) {
	res := h.service.Stats(r.Context())

	stats := res.Stats
	if stats.AuthorStats == nil {
		stats.AuthorStats = map[string]int{}
	}

	w.Header().Set(remoteStatusHeader, string(res.Status))
	writeJSON(w, http.StatusOK, stats)
}

// parseIntQuery は非負整数のクエリパラメータを読む。未指定の場合はdefを返す。
// 不正な値の場合は400を書き込みfalseを返す。
func parseIntQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidQueryError(name, raw))
		return 0, false
	}
	return v, true
}

func toMessageResponse(e model.TimelineEntry) messageResponse {
	return messageResponse{
		ID:        e.ID,
		Content:   e.Content,
		Username:  e.Username,
		AvatarURL: e.AvatarURL,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		Source:    string(e.Source),
	}
}
