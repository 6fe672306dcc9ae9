package chat

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/bookchat/internal/model"
	"github.com/hitoshi/bookchat/internal/remotelog"
)

// --- モック ---

type mockUserRepo struct {
	addFn      func(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error)
	findByIDFn func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserRepo) Add(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error) {
	return m.addFn(ctx, githubID, username, avatarURL)
}
func (m *mockUserRepo) FindByGithubID(ctx context.Context, githubID int64) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}

type mockMessageRepo struct {
	addFn  func(ctx context.Context, userID int64, content string) (int64, error)
	listFn func(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error)
}

func (m *mockMessageRepo) Add(ctx context.Context, userID int64, content string) (int64, error) {
	return m.addFn(ctx, userID, content)
}
func (m *mockMessageRepo) List(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
	return m.listFn(ctx, limit, offset)
}

type mockRemoteLog struct {
	pushFn   func(ctx context.Context, content, author string, metadata map[string]any) remotelog.PushResult
	listFn   func(ctx context.Context, limit int) remotelog.ListResult
	searchFn func(ctx context.Context, query string) remotelog.ListResult
	statsFn  func(ctx context.Context) remotelog.StatsResult
}

func (m *mockRemoteLog) PushMessage(ctx context.Context, content, author string, metadata map[string]any) remotelog.PushResult {
	return m.pushFn(ctx, content, author, metadata)
}
func (m *mockRemoteLog) ListMessages(ctx context.Context, limit int) remotelog.ListResult {
	return m.listFn(ctx, limit)
}
func (m *mockRemoteLog) SearchMessages(ctx context.Context, query string) remotelog.ListResult {
	return m.searchFn(ctx, query)
}
func (m *mockRemoteLog) MessageStats(ctx context.Context) remotelog.StatsResult {
	return m.statsFn(ctx)
}

type mockMetrics struct {
	remoteOps      []string
	messagesPosted int
	registered     []bool
}

func (m *mockMetrics) RecordRemoteOperation(op, status string, duration time.Duration) {
	m.remoteOps = append(m.remoteOps, op+":"+status)
}
func (m *mockMetrics) RecordMessagePosted()              { m.messagesPosted++ }
func (m *mockMetrics) RecordUserRegistered(created bool) { m.registered = append(m.registered, created) }
func (m *mockMetrics) RecordHTTPStatus(statusCode int)   {}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func at(hour int) time.Time {
	return time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC)
}

func localMsg(id int64, content string, ts time.Time) model.MessageWithUser {
	return model.MessageWithUser{
		Message:   model.Message{ID: id, UserID: 1, Content: content, CreatedAt: ts, UpdatedAt: ts},
		Username:  "alice",
		AvatarURL: "https://example.com/a.png",
	}
}

func remoteMsg(author, content string, ts time.Time) model.RemoteMessage {
	return model.RemoteMessage{Author: author, Content: content, Time: ts, Timestamp: ts.Format(time.RFC3339)}
}

func okList(msgs ...model.RemoteMessage) func(ctx context.Context, limit int) remotelog.ListResult {
	return func(ctx context.Context, limit int) remotelog.ListResult {
		if limit < len(msgs) {
			msgs = msgs[:limit]
		}
		return remotelog.ListResult{Messages: msgs, Status: remotelog.StatusOK}
	}
}

// --- Timeline ---

// ローカル {T3, T1} とリモート {T4, T2} は T4, T3, T2, T1 の順に統合される
func TestService_Timeline_MergesByTimestampDesc(t *testing.T) {
	messages := &mockMessageRepo{
		listFn: func(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
			return []model.MessageWithUser{localMsg(2, "T3", at(3)), localMsg(1, "T1", at(1))}, nil
		},
	}
	remote := &mockRemoteLog{listFn: okList(remoteMsg("bob", "T4", at(4)), remoteMsg("bob", "T2", at(2)))}
	m := &mockMetrics{}
	svc := NewService(&mockUserRepo{}, messages, remote, m, nil)

	tl, err := svc.Timeline(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Timeline がエラーを返した: %v", err)
	}

	want := []struct {
		content string
		id      string
		source  model.Source
	}{
		{"T4", "gh_0", model.SourceGitHub},
		{"T3", "2", model.SourceDatabase},
		{"T2", "gh_1", model.SourceGitHub},
		{"T1", "1", model.SourceDatabase},
	}
	if len(tl.Entries) != len(want) {
		t.Fatalf("len(Entries) = %d, want %d", len(tl.Entries), len(want))
	}
	for i, w := range want {
		e := tl.Entries[i]
		if e.Content != w.content || e.ID != w.id || e.Source != w.source {
			t.Errorf("entry[%d] = %+v, want %+v", i, e, w)
		}
	}
	if tl.Entries[0].Username != "bob" || tl.Entries[0].AvatarURL != "" {
		t.Errorf("remote entry user fields = %q / %q", tl.Entries[0].Username, tl.Entries[0].AvatarURL)
	}
	if tl.Entries[1].AvatarURL != "https://example.com/a.png" {
		t.Errorf("local entry avatar = %q", tl.Entries[1].AvatarURL)
	}
	if tl.RemoteStatus != remotelog.StatusOK {
		t.Errorf("RemoteStatus = %s, want ok", tl.RemoteStatus)
	}
	if len(m.remoteOps) != 1 || m.remoteOps[0] != "list:ok" {
		t.Errorf("remoteOps = %v", m.remoteOps)
	}
}

func TestService_Timeline_TruncatesToLimit(t *testing.T) {
	var gotLimit, gotOffset int
	messages := &mockMessageRepo{
		listFn: func(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
			gotLimit, gotOffset = limit, offset
			return []model.MessageWithUser{localMsg(2, "L2", at(5)), localMsg(1, "L1", at(1))}, nil
		},
	}
	remote := &mockRemoteLog{listFn: okList(remoteMsg("bob", "R1", at(3)), remoteMsg("bob", "R0", at(0)))}
	svc := NewService(&mockUserRepo{}, messages, remote, nil, nil)

	tl, err := svc.Timeline(context.Background(), 2, 4)
	if err != nil {
		t.Fatalf("Timeline がエラーを返した: %v", err)
	}
	if gotLimit != 2 || gotOffset != 4 {
		t.Errorf("List(limit=%d, offset=%d), want (2, 4)", gotLimit, gotOffset)
	}
	if len(tl.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(tl.Entries))
	}
	if tl.Entries[0].Content != "L2" || tl.Entries[1].Content != "R1" {
		t.Errorf("entries = %q, %q", tl.Entries[0].Content, tl.Entries[1].Content)
	}
}

// limit=0ではリモートログを呼び出さない
func TestService_Timeline_ZeroLimitSkipsRemote(t *testing.T) {
	messages := &mockMessageRepo{
		listFn: func(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
			return nil, nil
		},
	}
	remote := &mockRemoteLog{
		listFn: func(ctx context.Context, limit int) remotelog.ListResult {
			t.Errorf("ListMessages should not be called for limit=0 (got limit=%d)", limit)
			return remotelog.ListResult{Status: remotelog.StatusOK}
		},
	}
	m := &mockMetrics{}
	svc := NewService(&mockUserRepo{}, messages, remote, m, nil)

	tl, err := svc.Timeline(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("Timeline がエラーを返した: %v", err)
	}
	if len(tl.Entries) != 0 {
		t.Errorf("len(Entries) = %d, want 0", len(tl.Entries))
	}
	if tl.RemoteStatus != remotelog.StatusEmpty {
		t.Errorf("RemoteStatus = %s, want empty", tl.RemoteStatus)
	}
	if len(m.remoteOps) != 0 {
		t.Errorf("remoteOps = %v, want none", m.remoteOps)
	}
}

func TestService_Timeline_RemoteFailureDegradesToLocal(t *testing.T) {
	messages := &mockMessageRepo{
		listFn: func(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
			return []model.MessageWithUser{localMsg(1, "only local", at(1))}, nil
		},
	}
	remote := &mockRemoteLog{
		listFn: func(ctx context.Context, limit int) remotelog.ListResult {
			return remotelog.ListResult{Messages: []model.RemoteMessage{}, Status: remotelog.StatusFailed, Err: errors.New("api down")}
		},
	}
	var buf bytes.Buffer
	svc := NewService(&mockUserRepo{}, messages, remote, nil, newTestLogger(&buf))

	tl, err := svc.Timeline(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("リモート失敗時にエラーを返してはならない: %v", err)
	}
	if len(tl.Entries) != 1 || tl.Entries[0].Source != model.SourceDatabase {
		t.Errorf("Entries = %+v", tl.Entries)
	}
	if tl.RemoteStatus != remotelog.StatusFailed || tl.RemoteErr == nil {
		t.Errorf("RemoteStatus = %s, RemoteErr = %v", tl.RemoteStatus, tl.RemoteErr)
	}
	if buf.Len() == 0 {
		t.Error("リモート失敗がログに記録されていない")
	}
}

func TestService_Timeline_LocalErrorPropagates(t *testing.T) {
	messages := &mockMessageRepo{
		listFn: func(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
			return nil, errors.New("db locked")
		},
	}
	remote := &mockRemoteLog{
		listFn: func(ctx context.Context, limit int) remotelog.ListResult {
			t.Error("ローカル失敗時にリモートを呼んではならない")
			return remotelog.ListResult{}
		},
	}
	svc := NewService(&mockUserRepo{}, messages, remote, nil, nil)

	if _, err := svc.Timeline(context.Background(), 50, 0); err == nil {
		t.Fatal("ローカルのエラーは返されるべき")
	}
}

func TestService_Timeline_Empty(t *testing.T) {
	messages := &mockMessageRepo{
		listFn: func(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
			return nil, nil
		},
	}
	remote := &mockRemoteLog{
		listFn: func(ctx context.Context, limit int) remotelog.ListResult {
			return remotelog.ListResult{Messages: []model.RemoteMessage{}, Status: remotelog.StatusEmpty}
		},
	}
	svc := NewService(&mockUserRepo{}, messages, remote, nil, nil)

	tl, err := svc.Timeline(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("Timeline がエラーを返した: %v", err)
	}
	if tl.Entries == nil || len(tl.Entries) != 0 {
		t.Errorf("Entries = %v, want empty non-nil slice", tl.Entries)
	}
	if tl.RemoteStatus != remotelog.StatusEmpty {
		t.Errorf("RemoteStatus = %s, want empty", tl.RemoteStatus)
	}
}

// --- PostMessage ---

func TestService_PostMessage_SavesAndPushes(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Username: "alice"}, nil
		},
	}
	var saved string
	messages := &mockMessageRepo{
		addFn: func(ctx context.Context, userID int64, content string) (int64, error) {
			saved = content
			return 99, nil
		},
	}
	var pushedAuthor string
	var pushedMeta map[string]any
	remote := &mockRemoteLog{
		pushFn: func(ctx context.Context, content, author string, metadata map[string]any) remotelog.PushResult {
			pushedAuthor, pushedMeta = author, metadata
			return remotelog.PushResult{Status: remotelog.StatusOK}
		},
	}
	m := &mockMetrics{}
	svc := NewService(users, messages, remote, m, nil)

	id, err := svc.PostMessage(context.Background(), 1, "hello")
	if err != nil {
		t.Fatalf("PostMessage がエラーを返した: %v", err)
	}
	if id != 99 {
		t.Errorf("id = %d, want 99", id)
	}
	if saved != "hello" {
		t.Errorf("saved content = %q", saved)
	}
	if pushedAuthor != "alice" {
		t.Errorf("author = %q, want alice", pushedAuthor)
	}
	if pushedMeta["database_id"] != int64(99) {
		t.Errorf("metadata = %v", pushedMeta)
	}
	if m.messagesPosted != 1 {
		t.Errorf("messagesPosted = %d, want 1", m.messagesPosted)
	}
	if len(m.remoteOps) != 1 || m.remoteOps[0] != "push:ok" {
		t.Errorf("remoteOps = %v", m.remoteOps)
	}
}

// リモートへのpushが失敗しても投稿自体は成功する
func TestService_PostMessage_PushFailureStillSucceeds(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Username: "alice"}, nil
		},
	}
	messages := &mockMessageRepo{
		addFn: func(ctx context.Context, userID int64, content string) (int64, error) { return 5, nil },
	}
	remote := &mockRemoteLog{
		pushFn: func(ctx context.Context, content, author string, metadata map[string]any) remotelog.PushResult {
			return remotelog.PushResult{Status: remotelog.StatusFailed, Err: errors.New("forbidden")}
		},
	}
	m := &mockMetrics{}
	var buf bytes.Buffer
	svc := NewService(users, messages, remote, m, newTestLogger(&buf))

	id, err := svc.PostMessage(context.Background(), 1, "hello")
	if err != nil {
		t.Fatalf("push失敗でエラーを返してはならない: %v", err)
	}
	if id != 5 {
		t.Errorf("id = %d, want 5", id)
	}
	if len(m.remoteOps) != 1 || m.remoteOps[0] != "push:failed" {
		t.Errorf("remoteOps = %v", m.remoteOps)
	}
	if buf.Len() == 0 {
		t.Error("push失敗がログに記録されていない")
	}
}

func TestService_PostMessage_UnknownUser(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) { return nil, nil },
	}
	messages := &mockMessageRepo{
		addFn: func(ctx context.Context, userID int64, content string) (int64, error) {
			t.Error("未知のユーザーで保存してはならない")
			return 0, nil
		},
	}
	svc := NewService(users, messages, &mockRemoteLog{}, nil, nil)

	_, err := svc.PostMessage(context.Background(), 404, "hello")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIError を期待したが %v", err)
	}
	if apiErr.Code != model.ErrCodeUnknownUser {
		t.Errorf("Code = %s, want %s", apiErr.Code, model.ErrCodeUnknownUser)
	}
}

func TestService_PostMessage_StoreErrorPropagates(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			return &model.User{ID: id, Username: "alice"}, nil
		},
	}
	messages := &mockMessageRepo{
		addFn: func(ctx context.Context, userID int64, content string) (int64, error) {
			return 0, errors.New("disk full")
		},
	}
	remote := &mockRemoteLog{
		pushFn: func(ctx context.Context, content, author string, metadata map[string]any) remotelog.PushResult {
			t.Error("保存失敗時にpushしてはならない")
			return remotelog.PushResult{}
		},
	}
	svc := NewService(users, messages, remote, nil, nil)

	if _, err := svc.PostMessage(context.Background(), 1, "hello"); err == nil {
		t.Fatal("保存失敗はエラーを返すべき")
	}
}

// --- RegisterUser ---

func TestService_RegisterUser(t *testing.T) {
	users := &mockUserRepo{
		addFn: func(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error) {
			if githubID != 12345 || username != "TestUser" {
				t.Errorf("Add(%d, %q)", githubID, username)
			}
			return 3, false, nil
		},
	}
	m := &mockMetrics{}
	svc := NewService(users, &mockMessageRepo{}, &mockRemoteLog{}, m, nil)

	id, created, err := svc.RegisterUser(context.Background(), 12345, "TestUser", "")
	if err != nil {
		t.Fatalf("RegisterUser がエラーを返した: %v", err)
	}
	if id != 3 || created {
		t.Errorf("id = %d, created = %v", id, created)
	}
	if len(m.registered) != 1 || m.registered[0] {
		t.Errorf("registered = %v", m.registered)
	}
}

func TestService_RegisterUser_Error(t *testing.T) {
	users := &mockUserRepo{
		addFn: func(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error) {
			return 0, false, errors.New("boom")
		},
	}
	svc := NewService(users, &mockMessageRepo{}, &mockRemoteLog{}, nil, nil)

	if _, _, err := svc.RegisterUser(context.Background(), 1, "a", ""); err == nil {
		t.Fatal("エラーを期待した")
	}
}

// --- Search / Stats ---

func TestService_SearchAndStats_RecordMetrics(t *testing.T) {
	remote := &mockRemoteLog{
		searchFn: func(ctx context.Context, query string) remotelog.ListResult {
			if query != "foo" {
				t.Errorf("query = %q", query)
			}
			return remotelog.ListResult{Messages: []model.RemoteMessage{remoteMsg("a", "FOO", at(1))}, Status: remotelog.StatusOK}
		},
		statsFn: func(ctx context.Context) remotelog.StatsResult {
			return remotelog.StatsResult{Status: remotelog.StatusEmpty, Stats: model.MessageStats{AuthorStats: map[string]int{}}}
		},
	}
	m := &mockMetrics{}
	svc := NewService(&mockUserRepo{}, &mockMessageRepo{}, remote, m, nil)

	if res := svc.Search(context.Background(), "foo"); len(res.Messages) != 1 {
		t.Errorf("len(Messages) = %d, want 1", len(res.Messages))
	}
	if res := svc.Stats(context.Background()); res.Status != remotelog.StatusEmpty {
		t.Errorf("Stats status = %s", res.Status)
	}

	want := []string{"search:ok", "stats:empty"}
	if len(m.remoteOps) != 2 || m.remoteOps[0] != want[0] || m.remoteOps[1] != want[1] {
		t.Errorf("remoteOps = %v, want %v", m.remoteOps, want)
	}
}
