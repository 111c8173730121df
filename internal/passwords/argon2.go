package passwords

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/shoenig/go-conceal"
	"golang.org/x/crypto/argon2"
)

// Argon2id の既定パラメータ
const (
	DefaultArgonTime    = 3
	DefaultArgonMemory  = 64 * 1024 // KiB
	DefaultArgonThreads = 4
	DefaultArgonSaltLen = 16
	DefaultArgonKeyLen  = 32
)

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen uint32
}

// Option は Argon2id のパラメータを変更します。
type Option func(*argonParams)

// WithTime は反復回数を設定します。
func WithTime(t uint32) Option {
	return func(p *argonParams) {
		if t > 0 {
			p.time = t
		}
	}
}

// WithMemory はメモリ量 (KiB) を設定します。
func WithMemory(m uint32) Option {
	return func(p *argonParams) {
		if m > 0 {
			p.memory = m
		}
	}
}

// WithThreads は並列度を設定します。
func WithThreads(t uint8) Option {
	return func(p *argonParams) {
		if t > 0 {
			p.threads = t
		}
	}
}

// Argon2id は PHC 形式の Argon2id ハッシャーです。
type Argon2id struct {
	params argonParams
}

// NewArgon2id は Argon2id ハッシャーを作成します。
func NewArgon2id(opts ...Option) *Argon2id {
	params := argonParams{
		time:    DefaultArgonTime,
		memory:  DefaultArgonMemory,
		threads: DefaultArgonThreads,
		keyLen:  DefaultArgonKeyLen,
		saltLen: DefaultArgonSaltLen,
	}
	for _, opt := range opts {
		opt(&params)
	}
	return &Argon2id{params: params}
}

func (a *Argon2id) Algorithm() string {
	return AlgorithmArgon2id
}

func (a *Argon2id) Hash(password *conceal.Text) (string, error) {
	salt := make([]byte, a.params.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2id: failed to generate salt: %w", err)
	}

	p := a.params
	key := argon2.IDKey([]byte(password.Unveil()), salt, p.time, p.memory, p.threads, p.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (a *Argon2id) Verify(password *conceal.Text, encoded string) error {
	params, salt, expected, err := decodePHC(encoded)
	if err != nil {
		return err
	}

	computed := argon2.IDKey([]byte(password.Unveil()), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	if subtle.ConstantTimeCompare(computed, expected) != 1 {
		return ErrMismatch
	}
	return nil
}

func (a *Argon2id) NeedsUpdate(encoded string) bool {
	params, _, key, err := decodePHC(encoded)
	if err != nil {
		return true
	}
	return params.time != a.params.time ||
		params.memory != a.params.memory ||
		params.threads != a.params.threads ||
		uint32(len(key)) != a.params.keyLen
}

// decodePHC は $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key> を分解します。
func decodePHC(encoded string) (argonParams, []byte, []byte, error) {
	var params argonParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return params, nil, nil, ErrUnknownHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, fmt.Errorf("%w: unsupported argon2 version", ErrUnknownHash)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrUnknownHash, err)
	}
	if params.memory == 0 || params.time == 0 || params.threads == 0 {
		return params, nil, nil, fmt.Errorf("%w: zero argon2 parameter", ErrUnknownHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: invalid salt encoding", ErrUnknownHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return params, nil, nil, fmt.Errorf("%w: invalid key encoding", ErrUnknownHash)
	}
	params.saltLen = uint32(len(salt))
	params.keyLen = uint32(len(key))
	return params, salt, key, nil
}
