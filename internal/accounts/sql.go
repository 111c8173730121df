package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/yourusername/hx-accounts/internal/accounts/migrations"
)

// Dialect は SQLStore が接続するデータベースの種類です。
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const pgUniqueViolation = "23505"

func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "pgx"
}

func (d Dialect) gooseDialect() string {
	if d == DialectSQLite {
		return string(goose.DialectSQLite3)
	}
	return string(goose.DialectPostgres)
}

// SQLStore は database/sql 経由でアカウントを保存します。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore は接続済みの *sql.DB から SQLStore を作成します。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenSQL はデータベースに接続し、マイグレーションを適用します。
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite は書き込みを直列化する必要があり、:memory: は接続ごとに別の DB になる
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := RunMigrations(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLStore(db), nil
}

// goose は設定をパッケージ変数に持つため、並行実行を避ける
var migrateMu sync.Mutex

// gooseUpContext はテストで差し替えるための継ぎ目です。
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations は埋め込みマイグレーションを適用します。
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, account *Account) error {
	query := `INSERT INTO accounts (id, username, email, password_hash, date_joined)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash, account.DateJoined.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*Account, error) {
	query := `SELECT id, username, email, password_hash, date_joined, last_login
	          FROM accounts WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLStore) GetByUsername(ctx context.Context, username string) (*Account, error) {
	query := `SELECT id, username, email, password_hash, date_joined, last_login
	          FROM accounts WHERE username = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLStore) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1 WHERE id = $2`
	return s.execOne(ctx, query, passwordHash, id)
}

func (s *SQLStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE accounts SET last_login = $1 WHERE id = $2`
	return s.execOne(ctx, query, at.UTC(), id)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) scanOne(row *sql.Row) (*Account, error) {
	var (
		account   Account
		lastLogin sql.NullTime
	)
	err := row.Scan(&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.DateJoined, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	account.DateJoined = account.DateJoined.UTC()
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		account.LastLogin = &t
	}
	return &account, nil
}

func (s *SQLStore) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
