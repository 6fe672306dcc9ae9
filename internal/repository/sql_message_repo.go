package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookchat/internal/database"
	"github.com/hitoshi/bookchat/internal/model"
)

// SQLMessageRepo はdatabase/sqlを使用したメッセージリポジトリ。
type SQLMessageRepo struct {
	db      *sql.DB
	dialect database.Dialect
	now     func() time.Time
}

// NewSQLMessageRepo はSQLMessageRepoを生成する。
func NewSQLMessageRepo(db *sql.DB, dialect database.Dialect) *SQLMessageRepo {
	return &SQLMessageRepo{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

// Add はメッセージを挿入し、採番されたIDを返す。
func (r *SQLMessageRepo) Add(ctx context.Context, userID int64, content string) (int64, error) {
	now := r.now().UTC()

	var id int64
	err := r.db.QueryRowContext(ctx,
		rebind(r.dialect, `INSERT INTO messages (user_id, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 RETURNING id`),
		userID, content, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	return id, nil
}

// List はユーザー情報をJOINしたメッセージ一覧をcreated_at降順で返す。
// 同一時刻のメッセージはID降順で並べる。
func (r *SQLMessageRepo) List(ctx context.Context, limit, offset int) ([]model.MessageWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		rebind(r.dialect, `SELECT m.id, m.user_id, m.content, m.created_at, m.updated_at,
		        u.username, u.avatar_url
		 FROM messages m
		 JOIN users u ON m.user_id = u.id
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT ? OFFSET ?`),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []model.MessageWithUser
	for rows.Next() {
		var m model.MessageWithUser
		if err := rows.Scan(
			&m.ID, &m.UserID, &m.Content, &m.CreatedAt, &m.UpdatedAt,
			&m.Username, &m.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		m.UpdatedAt = m.UpdatedAt.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return messages, nil
}

// compile-time interface check
var _ MessageRepository = (*SQLMessageRepo)(nil)
