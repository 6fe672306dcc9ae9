package model

import "time"

// Source はタイムライン上のメッセージの取得元を表す。
type Source string

const (
	// SourceDatabase はローカルDBから取得したメッセージ。
	SourceDatabase Source = "database"
	// SourceGitHub はリモートログ（GitHubリポジトリ）から取得したメッセージ。
	SourceGitHub Source = "github"
)

// Message はローカルDBに保存されたメッセージを表す。作成後は変更されない。
type Message struct {
	ID        int64
	UserID    int64
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageWithUser はメッセージに投稿者の表示情報を結合した構造体。
type MessageWithUser struct {
	Message
	Username  string
	AvatarURL string
}

// RemoteMessage はリモートログの1ファイル分のメッセージレコード。
// JSONの形はリモートリポジトリ上のファイル形式そのもの。
type RemoteMessage struct {
	Author    string         `json:"author"`
	Timestamp string         `json:"timestamp"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`

	// Path はリポジトリ内のファイルパス。ファイル本体には含めない。
	Path string `json:"-"`
	// Time はTimestampをパースした値（UTC）。
	Time time.Time `json:"-"`
}

// TimelineEntry はローカルとリモートを統合したタイムラインの1件。
type TimelineEntry struct {
	ID        string
	Content   string
	Username  string
	AvatarURL string
	CreatedAt time.Time
	Source    Source
}

// MessageStats はリモートログ上のメッセージ統計。
type MessageStats struct {
	TotalMessages int            `json:"total_messages"`
	TotalAuthors  int            `json:"total_authors"`
	AuthorStats   map[string]int `json:"author_stats"`
	AverageLength float64        `json:"average_length"`
}
