package passwords

import (
	"errors"
	"fmt"

	"github.com/shoenig/go-conceal"
	"golang.org/x/crypto/bcrypt"
)

// Bcrypt は bcrypt によるハッシャーです。
type Bcrypt struct {
	cost int
}

// NewBcrypt は指定コストの Bcrypt を作成します。範囲外のコストは既定値になります。
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Algorithm() string {
	return AlgorithmBcrypt
}

func (b *Bcrypt) Hash(password *conceal.Text) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password.Unveil()), b.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

func (b *Bcrypt) Verify(password *conceal.Text, encoded string) error {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password.Unveil()))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrMismatch
	default:
		return fmt.Errorf("%w: %v", ErrUnknownHash, err)
	}
}

func (b *Bcrypt) NeedsUpdate(encoded string) bool {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return true
	}
	return cost != b.cost
}
