// Package remotelog はGitHubリポジトリを追記専用のメッセージログとして扱うクライアントを提供する。
// 1メッセージを1つのJSONファイルとして messages/ 以下に作成し、一覧・検索・集計を行う。
package remotelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-github/v66/github"
	"github.com/hitoshi/bookchat/internal/model"
)

const (
	// DefaultDirectory はメッセージファイルを置くリポジトリ内ディレクトリ。
	DefaultDirectory = "messages"
	// DefaultScanLimit は検索・集計で走査する最新メッセージの最大件数。
	DefaultScanLimit = 1000

	// fileTimeLayout はファイル名に埋め込むUTC時刻の形式。
	fileTimeLayout = "20060102_150405"
	// timestampLayout はレコードのtimestampフィールドの形式（ISO-8601, UTC, マイクロ秒）。
	timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

	repoDescription = "BookChat Messages Repository"
)

// Config はリモートログクライアントの設定。
type Config struct {
	// Token はGitHub APIのアクセストークン。
	Token string
	// Owner はリポジトリのオーナー。空の場合はEnsureRepositoryで認証ユーザーに解決する。
	Owner string
	// Repo はリポジトリ名。
	Repo string
	// APIURL はGitHub APIのベースURL。空の場合は https://api.github.com/ を使う。
	APIURL string
	// Directory はメッセージファイルを置くディレクトリ。空の場合はDefaultDirectory。
	Directory string
	// ScanLimit は検索・集計で走査する件数。0以下の場合はDefaultScanLimit。
	ScanLimit int
}

// Client はGitHubリポジトリ上のメッセージログのクライアント。
// すべての操作はエラーを呼び出し元に返さず、結果型のStatusとErrで報告する。
type Client struct {
	gh        *github.Client
	owner     string
	repo      string
	dir       string
	scanLimit int
	logger    *slog.Logger
	now       func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
// ネットワークアクセスは行わない。Ownerが空の場合は利用前にEnsureRepositoryを呼ぶこと。
func NewClient(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Repo == "" {
		return nil, errors.New("remotelog: repository name is required")
	}

	gh := github.NewClient(httpClient)
	if cfg.Token != "" {
		gh = gh.WithAuthToken(cfg.Token)
	}
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("remotelog: invalid api url: %w", err)
		}
		gh.BaseURL = u
	}

	dir := strings.Trim(cfg.Directory, "/")
	if dir == "" {
		dir = DefaultDirectory
	}
	scanLimit := cfg.ScanLimit
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		gh:        gh,
		owner:     cfg.Owner,
		repo:      cfg.Repo,
		dir:       dir,
		scanLimit: scanLimit,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// SplitRepository は "owner/name" 形式のリポジトリ指定をオーナーと名前に分割する。
// "name" のみの場合はオーナーを空で返す。
func SplitRepository(s string) (owner, name string) {
	s = strings.Trim(s, "/")
	if i := strings.Index(s, "/"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// Repository は "owner/name" 形式のリポジトリ名を返す。
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// EnsureRepository は対象リポジトリの存在を確認し、無ければ非公開リポジトリとして作成する。
// Ownerが未指定の場合は認証ユーザーをオーナーとする。
// 起動時に1回呼ばれることを想定しており、こちらはエラーを返す。
func (c *Client) EnsureRepository(ctx context.Context) error {
	login := ""
	if c.owner == "" {
		user, _, err := c.gh.Users.Get(ctx, "")
		if err != nil {
			return fmt.Errorf("failed to resolve authenticated user: %w", err)
		}
		login = user.GetLogin()
		c.owner = login
	}

	_, resp, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
	if err == nil {
		c.logger.Info("connected to remote log repository",
			slog.String("repository", c.Repository()),
		)
		return nil
	}
	if !isNotFound(resp) {
		return fmt.Errorf("failed to get repository %s: %w", c.Repository(), err)
	}

	// オーナーが認証ユーザー以外（組織）の場合は組織配下に作成する。
	if login == "" {
		if user, _, err := c.gh.Users.Get(ctx, ""); err == nil {
			login = user.GetLogin()
		}
	}
	org := ""
	if login != "" && !strings.EqualFold(login, c.owner) {
		org = c.owner
	}

	_, _, err = c.gh.Repositories.Create(ctx, org, &github.Repository{
		Name:        github.String(c.repo),
		Description: github.String(repoDescription),
		Private:     github.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create repository %s: %w", c.Repository(), err)
	}

	c.logger.Info("created remote log repository",
		slog.String("repository", c.Repository()),
	)
	return nil
}

// MessagePath はメッセージファイルのパスを返す。
// 形式: {dir}/{YYYYMMDD_HHMMSS}_{author}.json（時刻はUTC）
// 同一著者が同じ秒に2件投稿するとパスが衝突する。
func MessagePath(dir string, ts time.Time, author string) string {
	return fmt.Sprintf("%s/%s_%s.json", dir, ts.UTC().Format(fileTimeLayout), pathSafeAuthor(author))
}

// authorReplacer はパス区切りとURLとして解釈される文字を置き換える。
// ? # % はcontents APIのURLでクエリ・フラグメント・エスケープとして扱われ、パスが切り詰められる。
var authorReplacer = strings.NewReplacer("/", "-", "\\", "-", "?", "-", "#", "-", "%", "-")

func pathSafeAuthor(author string) string {
	author = strings.TrimSpace(authorReplacer.Replace(author))
	if author == "" || author == "." || author == ".." {
		return "anonymous"
	}
	return author
}

// PushMessage はメッセージを1ファイルとしてリポジトリに作成する。
// 失敗してもエラーは返さず、ログに記録してPushResultで報告する。
func (c *Client) PushMessage(ctx context.Context, content, author string, metadata map[string]any) PushResult {
	now := c.now().UTC()
	path := MessagePath(c.dir, now, author)

	if metadata == nil {
		metadata = map[string]any{}
	}
	record := model.RemoteMessage{
		Author:    author,
		Timestamp: now.Format(timestampLayout),
		Content:   content,
		Metadata:  metadata,
	}

	body, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		c.logger.Error("failed to encode remote message",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return PushResult{Path: path, Status: StatusFailed, Err: err}
	}

	_, _, err = c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, &github.RepositoryContentFileOptions{
		Message: github.String("Add message from " + author),
		Content: body,
	})
	if err != nil {
		c.logger.Error("failed to push message to remote log",
			slog.String("repository", c.Repository()),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return PushResult{Path: path, Status: StatusFailed, Err: err}
	}

	c.logger.Info("pushed message to remote log",
		slog.String("repository", c.Repository()),
		slog.String("path", path),
	)
	return PushResult{Path: path, Status: StatusOK}
}

// ListMessages はディレクトリ内の全メッセージファイルを取得し、timestamp降順で先頭limit件を返す。
// limitが0以下の場合は全件を返す。
// デコードできないファイルはログに記録してスキップし、一覧取得自体は継続する。
// ディレクトリが存在しない場合は StatusEmpty を返す。
func (c *Client) ListMessages(ctx context.Context, limit int) ListResult {
	_, entries, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, c.dir, nil)
	if err != nil {
		if isNotFound(resp) {
			return listResult(nil, 0)
		}
		c.logger.Error("failed to list remote log directory",
			slog.String("repository", c.Repository()),
			slog.String("path", c.dir),
			slog.String("error", err.Error()),
		)
		return failedList(err)
	}

	messages := make([]model.RemoteMessage, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		if entry.GetType() != "file" || !strings.HasSuffix(entry.GetName(), ".json") {
			continue
		}

		msg, err := c.fetchMessage(ctx, entry.GetPath())
		if err != nil {
			// ファイル単位の失敗はスキップする。コンテキスト切れは全体の失敗とする。
			if ctxErr := ctx.Err(); ctxErr != nil {
				return failedList(ctxErr)
			}
			c.logger.Warn("skipping unreadable remote message",
				slog.String("path", entry.GetPath()),
				slog.String("error", err.Error()),
			)
			skipped++
			continue
		}
		messages = append(messages, msg)
	}

	SortNewestFirst(messages)
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}

	return listResult(messages, skipped)
}

// fetchMessage は1ファイルを取得してデコードする。
func (c *Client) fetchMessage(ctx context.Context, path string) (model.RemoteMessage, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, nil)
	if err != nil {
		return model.RemoteMessage{}, fmt.Errorf("failed to get file: %w", err)
	}
	if file == nil {
		return model.RemoteMessage{}, errors.New("path is not a file")
	}

	raw, err := file.GetContent()
	if err != nil {
		return model.RemoteMessage{}, fmt.Errorf("failed to decode file content: %w", err)
	}

	msg, err := DecodeMessage([]byte(raw))
	if err != nil {
		return model.RemoteMessage{}, err
	}
	msg.Path = path
	return msg, nil
}

// DecodeMessage はメッセージファイルの本文をデコードし、timestampをパースする。
func DecodeMessage(data []byte) (model.RemoteMessage, error) {
	var msg model.RemoteMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.RemoteMessage{}, fmt.Errorf("invalid message json: %w", err)
	}

	ts, err := ParseTimestamp(msg.Timestamp)
	if err != nil {
		return model.RemoteMessage{}, err
	}
	msg.Time = ts
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	return msg, nil
}

// timestampLayouts はレコードのtimestampとして受け付ける形式。
// タイムゾーン無しの形式はUTCとして解釈する。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp はISO-8601形式のtimestampをUTCの時刻に変換する。
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q", s)
}

// SortNewestFirst はメッセージをtimestamp降順に並べ替える。同時刻はパス降順。
func SortNewestFirst(messages []model.RemoteMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Time.Equal(messages[j].Time) {
			return messages[i].Path > messages[j].Path
		}
		return messages[i].Time.After(messages[j].Time)
	})
}

// SearchMessages は最新ScanLimit件のうち、contentにqueryを含むメッセージを返す。
// 大文字小文字は区別しない。queryが空の場合は全件が一致する。
func (c *Client) SearchMessages(ctx context.Context, query string) ListResult {
	all := c.ListMessages(ctx, c.scanLimit)
	if all.Status == StatusFailed {
		return all
	}

	needle := strings.ToLower(query)
	matched := make([]model.RemoteMessage, 0)
	for _, msg := range all.Messages {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			matched = append(matched, msg)
		}
	}

	return listResult(matched, all.Skipped)
}

// MessageStats は最新ScanLimit件のメッセージの統計を返す。
func (c *Client) MessageStats(ctx context.Context) StatsResult {
	all := c.ListMessages(ctx, c.scanLimit)
	stats := ComputeStats(all.Messages)
	return StatsResult{Stats: stats, Status: all.Status, Err: all.Err}
}

// ComputeStats はメッセージ群の件数・著者数・著者別件数・平均文字数を集計する。
// 文字数はルーン数で数える。メッセージが無い場合の平均は0。
func ComputeStats(messages []model.RemoteMessage) model.MessageStats {
	authors := make(map[string]int)
	totalLength := 0
	for _, msg := range messages {
		authors[msg.Author]++
		totalLength += utf8.RuneCountInString(msg.Content)
	}

	stats := model.MessageStats{
		TotalMessages: len(messages),
		TotalAuthors:  len(authors),
		AuthorStats:   authors,
	}
	if len(messages) > 0 {
		stats.AverageLength = float64(totalLength) / float64(len(messages))
	}
	return stats
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}
