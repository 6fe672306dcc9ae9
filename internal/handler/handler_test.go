package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/bookchat/internal/chat"
	"github.com/hitoshi/bookchat/internal/remotelog"
)

// --- モック定義 ---

// mockMessageService はMessageServiceInterfaceのモック実装。
type mockMessageService struct {
	timelineFn    func(ctx context.Context, limit, offset int) (*chat.Timeline, error)
	postMessageFn func(ctx context.Context, userID int64, content string) (int64, error)
	searchFn      func(ctx context.Context, query string) remotelog.ListResult
	statsFn       func(ctx context.Context) remotelog.StatsResult
}

func (m *mockMessageService) Timeline(ctx context.Context, limit, offset int) (*chat.Timeline, error) {
	if m.timelineFn != nil {
		return m.timelineFn(ctx, limit, offset)
	}
	return &chat.Timeline{RemoteStatus: remotelog.StatusEmpty}, nil
}

func (m *mockMessageService) PostMessage(ctx context.Context, userID int64, content string) (int64, error) {
	if m.postMessageFn != nil {
		return m.postMessageFn(ctx, userID, content)
	}
	return 1, nil
}

func (m *mockMessageService) Search(ctx context.Context, query string) remotelog.ListResult {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return remotelog.ListResult{Status: remotelog.StatusEmpty}
}

func (m *mockMessageService) Stats(ctx context.Context) remotelog.StatsResult {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return remotelog.StatsResult{Status: remotelog.StatusEmpty}
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	registerUserFn func(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error)
}

func (m *mockUserService) RegisterUser(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error) {
	if m.registerUserFn != nil {
		return m.registerUserFn(ctx, githubID, username, avatarURL)
	}
	return 1, true, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error { return m.err }

// --- テストヘルパー ---

// newTestRouter はモックサービスでルーターを構成する。
func newTestRouter(msgSvc *mockMessageService, userSvc *mockUserService) http.Handler {
	if msgSvc == nil {
		msgSvc = &mockMessageService{}
	}
	if userSvc == nil {
		userSvc = &mockUserService{}
	}
	return NewRouter(&RouterDeps{
		MessageService: msgSvc,
		UserService:    userSvc,
		HealthChecker:  &mockHealthChecker{},
	})
}

// parseErrorResponse はレスポンスボディからエラーレスポンスをパースするヘルパー。
func parseErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
