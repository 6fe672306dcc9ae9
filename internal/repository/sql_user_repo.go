package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/bookchat/internal/database"
	"github.com/hitoshi/bookchat/internal/model"
)

// SQLUserRepo はdatabase/sqlを使用したユーザーリポジトリ。
// PostgreSQLとSQLiteの両方で同じクエリを使う。
type SQLUserRepo struct {
	db      *sql.DB
	dialect database.Dialect
	now     func() time.Time
}

// NewSQLUserRepo はSQLUserRepoを生成する。
func NewSQLUserRepo(db *sql.DB, dialect database.Dialect) *SQLUserRepo {
	return &SQLUserRepo{
		db:      db,
		dialect: dialect,
		now:     time.Now,
	}
}

// Add はgithub_idをキーにユーザーを挿入する（insert-or-ignore）。
// ON CONFLICT DO NOTHING で挿入が行われなかった場合は既存行のIDを引き直して返す。
func (r *SQLUserRepo) Add(ctx context.Context, githubID int64, username, avatarURL string) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		rebind(r.dialect, `INSERT INTO users (github_id, username, avatar_url, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (github_id) DO NOTHING
		 RETURNING id`),
		githubID, username, avatarURL, r.now().UTC(),
	).Scan(&id)

	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("failed to insert user: %w", err)
	}

	// 既存ユーザー
	existing, err := r.FindByGithubID(ctx, githubID)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, fmt.Errorf("user with github_id %d vanished after conflict", githubID)
	}
	return existing.ID, false, nil
}

// FindByGithubID はgithub_idでユーザーを検索する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByGithubID(ctx context.Context, githubID int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		rebind(r.dialect, `SELECT id, github_id, username, avatar_url, created_at FROM users WHERE github_id = ?`),
		githubID,
	).Scan(&user.ID, &user.GithubID, &user.Username, &user.AvatarURL, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by github_id: %w", err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		rebind(r.dialect, `SELECT id, github_id, username, avatar_url, created_at FROM users WHERE id = ?`),
		id,
	).Scan(&user.ID, &user.GithubID, &user.Username, &user.AvatarURL, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*SQLUserRepo)(nil)
