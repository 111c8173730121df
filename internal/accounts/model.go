// Package accounts はアカウントの永続化と認証処理（アイデンティティストア）を提供します。
package accounts

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("account not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnsupportedStore   = errors.New("unsupported account store")
)

// Account はログイン可能なユーザーを表します。
type Account struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"passwordHash"`
	DateJoined   time.Time  `json:"dateJoined"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

func (a *Account) clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.LastLogin != nil {
		t := *a.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}
