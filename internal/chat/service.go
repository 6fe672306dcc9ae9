// Package chat はローカルDBとリモートログを組み合わせたチャットのドメインロジックを提供する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/hitoshi/bookchat/internal/metrics"
	"github.com/hitoshi/bookchat/internal/model"
	"github.com/hitoshi/bookchat/internal/remotelog"
	"github.com/hitoshi/bookchat/internal/repository"
)

// RemoteLog はリモートログに対する操作のインターフェース。
// remotelog.Client が実装する。
type RemoteLog interface {
	PushMessage(ctx context.Context, content, author string, metadata map[string]any) remotelog.PushResult
	ListMessages(ctx context.Context, limit int) remotelog.ListResult
	SearchMessages(ctx context.Context, query string) remotelog.ListResult
	MessageStats(ctx context.Context) remotelog.StatsResult
}

// Timeline はローカルとリモートを統合したタイムライン。
type Timeline struct {
	Entries []model.TimelineEntry
	// RemoteStatus はリモートログ取得の結果。failedの場合Entriesはローカル分のみ。
	RemoteStatus remotelog.Status
	RemoteErr    error
}

// Service はチャットのサービス層。状態は持たない。
type Service struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	remote   RemoteLog
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorはnilでもよい。
func NewService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	remote RemoteLog,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		messages: messages,
		remote:   remote,
		metrics:  collector,
		logger:   logger,
	}
}

// Timeline はローカルのページとリモートの最新limit件を統合し、作成日時の降順で先頭limit件を返す。
// リモートはoffsetを考慮せず常に最新から取得する。
// ローカルのエラーは返し、リモートの失敗はローカルのみの結果に縮退する。
func (s *Service) Timeline(ctx context.Context, limit, offset int) (*Timeline, error) {
	local, err := s.messages.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("メッセージ一覧の取得に失敗しました: %w", err)
	}

	// limit=0では統合結果が常に空になるため、リモートは取得しない
	remote := remotelog.ListResult{Status: remotelog.StatusEmpty}
	if limit != 0 {
		start := time.Now()
		remote = s.remote.ListMessages(ctx, limit)
		s.recordRemote("list", remote.Status, start)
		if remote.Status == remotelog.StatusFailed {
			s.logger.Warn("remote log unavailable, serving local messages only",
				slog.String("error", errString(remote.Err)),
			)
		}
	}

	entries := make([]model.TimelineEntry, 0, len(local)+len(remote.Messages))
	for _, m := range local {
		entries = append(entries, model.TimelineEntry{
			ID:        strconv.FormatInt(m.ID, 10),
			Content:   m.Content,
			Username:  m.Username,
			AvatarURL: m.AvatarURL,
			CreatedAt: m.CreatedAt,
			Source:    model.SourceDatabase,
		})
	}
	for i, m := range remote.Messages {
		entries = append(entries, model.TimelineEntry{
			ID:        "gh_" + strconv.Itoa(i),
			Content:   m.Content,
			Username:  m.Author,
			CreatedAt: m.Time,
			Source:    model.SourceGitHub,
		})
	}

	// 同時刻は入力順（ローカル優先）を保つ
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return &Timeline{
		Entries:      entries,
		RemoteStatus: remote.Status,
		RemoteErr:    remote.Err,
	}, nil
}

// PostMessage はメッセージをローカルDBに保存し、リモートログにも記録する。
// 投稿者が存在しない場合はUNKNOWN_USERエラーを返す。
// リモートへのpush失敗はログとメトリクスに記録するのみで、呼び出し元には返さない。
func (s *Service) PostMessage(ctx context.Context, userID int64, content string) (int64, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return 0, model.NewUnknownUserError(userID)
	}

	id, err := s.messages.Add(ctx, userID, content)
	if err != nil {
		return 0, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordMessagePosted()
	}

	start := time.Now()
	push := s.remote.PushMessage(ctx, content, user.Username, map[string]any{"database_id": id})
	s.recordRemote("push", push.Status, start)
	if !push.OK() {
		s.logger.Warn("message saved locally but not pushed to remote log",
			slog.Int64("message_id", id),
			slog.String("error", errString(push.Err)),
		)
	}

	return id, nil
}

// RegisterUser はユーザーを登録する。github_idが既存の場合は既存のIDとcreated=falseを返す。
func (s *Service) RegisterUser(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error) {
	id, created, err := s.users.Add(ctx, githubID, username, avatarURL)
	if err != nil {
		return 0, false, fmt.Errorf("ユーザーの登録に失敗しました: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordUserRegistered(created)
	}
	return id, created, nil
}

// Search はリモートログを大文字小文字を区別せずに検索する。
func (s *Service) Search(ctx context.Context, query string) remotelog.ListResult {
	start := time.Now()
	res := s.remote.SearchMessages(ctx, query)
	s.recordRemote("search", res.Status, start)
	return res
}

// Stats はリモートログのメッセージ統計を返す。
func (s *Service) Stats(ctx context.Context) remotelog.StatsResult {
	start := time.Now()
	res := s.remote.MessageStats(ctx)
	s.recordRemote("stats", res.Status, start)
	return res
}

func (s *Service) recordRemote(op string, status remotelog.Status, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRemoteOperation(op, string(status), time.Since(start))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
