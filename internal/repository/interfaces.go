// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/bookchat/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Add はgithub_idをキーにユーザーを挿入する（insert-or-ignore）。
	// 既に同じgithub_idのユーザーが存在する場合は既存行を変更せず、そのIDとcreated=falseを返す。
	Add(ctx context.Context, githubID int64, username, avatarURL string) (id int64, created bool, err error)

	// FindByGithubID はgithub_idでユーザーを検索する。見つからない場合はnilを返す。
	FindByGithubID(ctx context.Context, githubID int64) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// MessageRepository はメッセージデータの永続化インターフェース。
type MessageRepository interface {
	// Add はメッセージを挿入し、採番されたIDを返す。
	// created_at、updated_atには現在時刻（UTC）を設定する。
	Add(ctx context.Context, userID int64, content string) (int64, error)

	// List はユーザー情報をJOINしたメッセージ一覧をcreated_at降順で返す。
	List(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error)
}
