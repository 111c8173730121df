// Package passwords はパスワードのハッシュ化・検証とパスワードポリシーを提供します。
package passwords

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shoenig/go-conceal"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

var (
	ErrMismatch      = errors.New("passwords: password does not match hash")
	ErrUnknownHash   = errors.New("passwords: unknown hash format")
	ErrUnknownHasher = errors.New("passwords: unknown hasher")
)

// Hasher はパスワードハッシュのアルゴリズムを表します。
type Hasher interface {
	// Algorithm は Identify が返す名前と同じアルゴリズム名を返します。
	Algorithm() string
	Hash(password *conceal.Text) (string, error)
	// Verify は一致しない場合に ErrMismatch を返します。
	Verify(password *conceal.Text, encoded string) error
	// NeedsUpdate は現在の設定でハッシュを作り直すべきかを返します。
	NeedsUpdate(encoded string) bool
}

// New は設定名からハッシャーを作成します。
func New(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmBcrypt:
		return NewBcrypt(bcrypt.DefaultCost), nil
	case AlgorithmArgon2id:
		return NewArgon2id(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
	}
}

// Identify はエンコード済みハッシュのアルゴリズム名を判定します。
func Identify(encoded string) (string, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return AlgorithmArgon2id, nil
	case strings.HasPrefix(encoded, "$2a$"),
		strings.HasPrefix(encoded, "$2b$"),
		strings.HasPrefix(encoded, "$2y$"):
		return AlgorithmBcrypt, nil
	default:
		return "", ErrUnknownHash
	}
}

// Verify はハッシュの形式に応じたアルゴリズムでパスワードを検証します。
// 設定中のハッシャーと異なる形式で保存されたハッシュも検証できます。
func Verify(password *conceal.Text, encoded string) error {
	algorithm, err := Identify(encoded)
	if err != nil {
		return err
	}
	switch algorithm {
	case AlgorithmArgon2id:
		return NewArgon2id().Verify(password, encoded)
	default:
		return NewBcrypt(bcrypt.DefaultCost).Verify(password, encoded)
	}
}
