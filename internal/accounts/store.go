package accounts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Store はアカウントの保存先を抽象化します。
type Store interface {
	// Create はユーザー名が既に存在する場合 ErrUsernameTaken を返します。
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Close() error
}

// Open は URL のスキームに応じてストアを作成します。
//
//	memory://                   プロセス内（開発・テスト用）
//	postgres://… postgresql://… PostgreSQL (pgx)
//	sqlite://<path> file:<path> SQLite (modernc)
//	redis://… rediss://…        Redis
func Open(ctx context.Context, rawURL string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || rawURL == "memory" {
		return NewMemoryStore(), nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account store url: %w", err)
	}

	switch u.Scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return OpenSQL(ctx, DialectPostgres, rawURL)
	case "sqlite":
		return OpenSQL(ctx, DialectSQLite, sqlitePath(rawURL))
	case "file":
		return OpenSQL(ctx, DialectSQLite, rawURL)
	case "redis", "rediss":
		return OpenRedis(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStore, u.Scheme)
	}
}

// sqlitePath は sqlite:// 形式を modernc のデータソース名に変換します。
func sqlitePath(rawURL string) string {
	dsn := strings.TrimPrefix(rawURL, "sqlite://")
	if dsn == "" {
		return ":memory:"
	}
	return dsn
}
