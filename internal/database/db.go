package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect は接続先データベースの種類を表す。
type Dialect string

const (
	// DialectPostgres はPostgreSQL（lib/pq）を表す。
	DialectPostgres Dialect = "postgres"
	// DialectSQLite はSQLite（modernc.org/sqlite）を表す。
	DialectSQLite Dialect = "sqlite"
)

// sqliteParams はSQLite接続ごとに適用するドライバパラメータ。
// 外部キー制約はSQLiteではデフォルト無効のため明示的に有効化する。
// 時刻はSQLite標準の文字列形式で書き込み、created_atの文字列順序と時刻順序を一致させる。
const sqliteParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

// ParseURL はデータベースURLからDialectとドライバに渡すDSNを決定する。
//
//	postgres://... / postgresql://...  → PostgreSQL
//	sqlite://<path> / file:<path> / :memory:  → SQLite
func ParseURL(databaseURL string) (Dialect, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return DialectPostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return DialectSQLite, withSQLiteParams(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "file:"), databaseURL == ":memory:":
		return DialectSQLite, withSQLiteParams(databaseURL), nil
	default:
		return "", "", fmt.Errorf("unsupported database url scheme: %q", databaseURL)
	}
}

func withSQLiteParams(dsn string) string {
	if dsn == "" {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteParams
	}
	return dsn + "?" + sqliteParams
}

// Open はデータベース接続プールを開く。
// sql.Openは接続を試行しないため、実際の接続確認にはdb.Ping()を使用すること。
// SQLiteは書き込みが単一接続に直列化されるため、最大接続数を1に制限する。
// これによりインメモリDBもプール内で同一のDBとして扱われる。
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, "", err
	}
	if dsn == "" {
		return nil, "", fmt.Errorf("empty database path: %q", databaseURL)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		if err := ensureSQLiteDir(dsn); err != nil {
			db.Close()
			return nil, "", err
		}
		db.SetMaxOpenConns(1)
	}

	return db, dialect, nil
}

// ensureSQLiteDir はSQLiteファイルの親ディレクトリを作成する。
// インメモリDBの場合は何もしない。
func ensureSQLiteDir(dsn string) error {
	path, _, _ := strings.Cut(dsn, "?")
	path = strings.TrimPrefix(path, "file:")
	if path == "" || strings.Contains(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
