package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shoenig/go-conceal"

	"github.com/yourusername/hx-accounts/internal/passwords"
)

// Registration は新規登録の入力です。検証済みであることを前提とします。
type Registration struct {
	Username string
	Email    string
	Password *conceal.Text
}

// Service はアカウントの登録・認証・パスワード変更を行います。
type Service struct {
	store  Store
	hasher passwords.Hasher
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService は Service を作成します。hasher は新しく作るハッシュに使われます。
func NewService(store Store, hasher passwords.Hasher) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
		now:    time.Now,
	}
}

// Register はアカウントを作成します。
func (s *Service) Register(ctx context.Context, reg Registration) (*Account, error) {
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{
		ID:           uuid.NewString(),
		Username:     reg.Username,
		Email:        strings.TrimSpace(reg.Email),
		PasswordHash: hash,
		DateJoined:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	return account, nil
}

// Authenticate はユーザー名とパスワードを検証します。
// ユーザーが存在しない場合もパスワードが違う場合も ErrInvalidCredentials を返します。
func (s *Service) Authenticate(ctx context.Context, username string, password *conceal.Text) (*Account, error) {
	account, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// 存在しないユーザーでも同程度の時間をかける
			s.burnHash(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error loading account: %w", err)
	}

	if err := s.CheckPassword(account, password); err != nil {
		return nil, err
	}

	if s.needsRehash(account.PasswordHash) {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		if err := s.store.UpdatePassword(ctx, account.ID, hash); err != nil {
			return nil, fmt.Errorf("error upgrading password hash: %w", err)
		}
		account.PasswordHash = hash
	}
	return account, nil
}

// RecordLogin は最終ログイン日時を更新します。
func (s *Service) RecordLogin(ctx context.Context, account *Account) error {
	now := s.now().UTC()
	if err := s.store.TouchLogin(ctx, account.ID, now); err != nil {
		return fmt.Errorf("error recording login: %w", err)
	}
	account.LastLogin = &now
	return nil
}

// CheckPassword はアカウントのパスワードと一致するかを確認します。
func (s *Service) CheckPassword(account *Account, password *conceal.Text) error {
	if err := passwords.Verify(password, account.PasswordHash); err != nil {
		if errors.Is(err, passwords.ErrMismatch) || errors.Is(err, passwords.ErrUnknownHash) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}

// SetPassword は検証済みの新しいパスワードを保存し、更新後のアカウントを返します。
func (s *Service) SetPassword(ctx context.Context, account *Account, password *conceal.Text) (*Account, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, account.ID, hash); err != nil {
		return nil, fmt.Errorf("error updating password: %w", err)
	}
	updated := account.clone()
	updated.PasswordHash = hash
	return updated, nil
}

// Get は ID でアカウントを取得します。
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) needsRehash(encoded string) bool {
	algorithm, err := passwords.Identify(encoded)
	if err != nil {
		return false
	}
	return algorithm != s.hasher.Algorithm() || s.hasher.NeedsUpdate(encoded)
}

func (s *Service) burnHash(password *conceal.Text) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(conceal.New(uuid.NewString()))
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(password, s.dummyHash)
	}
}
