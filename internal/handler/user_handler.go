package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bookchat/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// RegisterUser はユーザーを登録する。github_idが既存の場合は既存のIDを返す。
	RegisterUser(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error)
}

// UserHandler はユーザー登録のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// registerUserRequest はユーザー登録リクエストのボディ。
// github_idは数値でも数値文字列でもよい。
type registerUserRequest struct {
	GithubID  flexInt64 `json:"github_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
}

// RegisterUser はユーザーを登録する。既存ユーザーの場合も201で既存のIDを返す。
// POST /users
func (h *UserHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	var missing []string
	if !req.GithubID.Valid {
		missing = append(missing, "github_id")
	}
	if req.Username == "" {
		missing = append(missing, "username")
	}
	if len(missing) > 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldsError(missing...))
		return
	}

	id, _, err := h.service.RegisterUser(r.Context(), req.GithubID.Value, req.Username, req.AvatarURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}
