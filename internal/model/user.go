// Package model はドメインモデルを定義する。
package model

import "time"

// User はチャット参加ユーザーを表す。
// GithubIDは外部IdP（GitHub）のユーザーIDで、一度登録されると変更されない。
type User struct {
	ID        int64
	GithubID  int64
	Username  string
	AvatarURL string
	CreatedAt time.Time
}
