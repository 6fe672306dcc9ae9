package model

import "fmt"

// APIError はクライアントに返すドメインエラーを表す。
// HTTPステータスへの変換はhandler層で行う。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ（レスポンスの "error" にそのまま入る）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidJSON   = "INVALID_JSON"
	ErrCodeMissingFields = "MISSING_FIELDS"
	ErrCodeInvalidQuery  = "INVALID_QUERY"
	ErrCodeUnknownUser   = "UNKNOWN_USER"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// NewInvalidJSONError はリクエストボディのJSONが不正な場合のエラーを生成する。
func NewInvalidJSONError() *APIError {
	return &APIError{
		Code:    ErrCodeInvalidJSON,
		Message: "Invalid JSON",
	}
}

// NewMissingFieldsError は必須フィールドが欠けている場合のエラーを生成する。
func NewMissingFieldsError(fields ...string) *APIError {
	msg := "Missing required fields"
	if len(fields) > 0 {
		msg = fmt.Sprintf("Missing required fields: %v", fields)
	}
	return &APIError{
		Code:    ErrCodeMissingFields,
		Message: msg,
	}
}

// NewInvalidQueryError はクエリパラメータが不正な場合のエラーを生成する。
func NewInvalidQueryError(param, value string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidQuery,
		Message: fmt.Sprintf("invalid %s: %q", param, value),
	}
}

// NewUnknownUserError は投稿者のユーザーが存在しない場合のエラーを生成する。
func NewUnknownUserError(userID int64) *APIError {
	return &APIError{
		Code:    ErrCodeUnknownUser,
		Message: fmt.Sprintf("unknown user: %d", userID),
	}
}

// NewNotFoundError は存在しないルートへのリクエストに対するエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: "Not found",
	}
}

// NewRateLimitedError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "Too many requests",
	}
}

// NewInternalError は内部エラーを生成する。messageはクライアントにそのまま返される。
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: message,
	}
}
