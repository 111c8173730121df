package passwords

import (
	"bufio"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hashicorp/go-set/v3"
)

const (
	DefaultMinLength     = 8
	DefaultMaxSimilarity = 0.7
	// bcrypt は 72 バイトを超える入力を扱えない
	DefaultMaxBytes = 72
)

//go:embed common-passwords.txt
var commonPasswordList string

// UserAttributes はパスワードと比較するユーザー属性です。
type UserAttributes struct {
	Username string
	Email    string
}

// Violation はポリシー違反を表すエラーです。
type Violation struct {
	Code    string
	Message string
}

func (v *Violation) Error() string {
	return v.Message
}

// Validator は単一のパスワードルールです。
type Validator interface {
	Validate(password string, attrs UserAttributes) *Violation
}

// Policy は複数のルールをまとめたものです。
type Policy struct {
	validators []Validator
}

// NewPolicy は任意のルールから Policy を作成します。
func NewPolicy(validators ...Validator) *Policy {
	return &Policy{validators: validators}
}

// DefaultPolicy は既定のルール一式を返します。
func DefaultPolicy(minLength int) *Policy {
	return NewPolicy(
		AttributeSimilarity{MaxSimilarity: DefaultMaxSimilarity},
		MinimumLength{Min: minLength},
		NewCommonPasswords(),
		NumericPassword{},
		MaximumBytes{Max: DefaultMaxBytes},
	)
}

// Validate は違反をルール順にすべて返します。違反がなければ nil です。
func (p *Policy) Validate(password string, attrs UserAttributes) []*Violation {
	var violations []*Violation
	for _, v := range p.validators {
		if violation := v.Validate(password, attrs); violation != nil {
			violations = append(violations, violation)
		}
	}
	return violations
}

// MinimumLength は最小文字数を要求します。
type MinimumLength struct {
	Min int
}

func (m MinimumLength) Validate(password string, _ UserAttributes) *Violation {
	min := m.Min
	if min <= 0 {
		min = DefaultMinLength
	}
	if utf8.RuneCountInString(password) >= min {
		return nil
	}
	return &Violation{
		Code:    "password_too_short",
		Message: fmt.Sprintf("このパスワードは短すぎます。最低 %d 文字以上必要です。", min),
	}
}

// MaximumBytes は UTF-8 でのバイト数の上限です。
type MaximumBytes struct {
	Max int
}

func (m MaximumBytes) Validate(password string, _ UserAttributes) *Violation {
	if m.Max <= 0 || len(password) <= m.Max {
		return nil
	}
	return &Violation{
		Code:    "password_too_long",
		Message: fmt.Sprintf("このパスワードは長すぎます。%d バイト以下にしてください。", m.Max),
	}
}

// NumericPassword は数字だけのパスワードを拒否します。
type NumericPassword struct{}

func (NumericPassword) Validate(password string, _ UserAttributes) *Violation {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return &Violation{
		Code:    "password_entirely_numeric",
		Message: "このパスワードは数字しか使われていません。",
	}
}

// CommonPasswords はよく使われるパスワードの一覧と照合します。
type CommonPasswords struct {
	list *set.Set[string]
}

// NewCommonPasswords は埋め込みの一覧から CommonPasswords を作成します。
func NewCommonPasswords() *CommonPasswords {
	var items []string
	scanner := bufio.NewScanner(strings.NewReader(commonPasswordList))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, strings.ToLower(line))
	}
	return &CommonPasswords{list: set.From(items)}
}

func (c *CommonPasswords) Validate(password string, _ UserAttributes) *Violation {
	if !c.list.Contains(strings.ToLower(strings.TrimSpace(password))) {
		return nil
	}
	return &Violation{
		Code:    "password_too_common",
		Message: "このパスワードは一般的すぎます。",
	}
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// AttributeSimilarity はユーザー名やメールアドレスに似すぎたパスワードを拒否します。
type AttributeSimilarity struct {
	MaxSimilarity float64
}

func (a AttributeSimilarity) Validate(password string, attrs UserAttributes) *Violation {
	max := a.MaxSimilarity
	if max <= 0 {
		max = DefaultMaxSimilarity
	}
	password = strings.ToLower(password)

	candidates := []struct {
		label string
		value string
	}{
		{"ユーザー名", attrs.Username},
		{"メールアドレス", attrs.Email},
	}
	for _, attr := range candidates {
		if attr.value == "" {
			continue
		}
		value := strings.ToLower(attr.value)
		parts := append(nonWord.Split(value, -1), value)
		for _, part := range parts {
			if exceedsLengthRatio(password, max, part) {
				continue
			}
			if quickRatio(password, part) >= max {
				return &Violation{
					Code:    "password_too_similar",
					Message: fmt.Sprintf("このパスワードは %s と似すぎています。", attr.label),
				}
			}
		}
	}
	return nil
}

// exceedsLengthRatio はパスワードが属性より十分長く、比較する意味がない場合に true を返します。
func exceedsLengthRatio(password string, max float64, value string) bool {
	pwdLen := utf8.RuneCountInString(password)
	valueLen := utf8.RuneCountInString(value)
	bound := max / 2 * float64(pwdLen)
	return pwdLen >= 10*valueLen && float64(valueLen) < bound
}

// quickRatio は順序を無視した文字の重なりから類似度の上限を求めます。
func quickRatio(a, b string) float64 {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	avail := make(map[rune]int)
	for _, r := range b {
		avail[r]++
	}
	matches := 0
	for _, r := range a {
		if avail[r] > 0 {
			avail[r]--
			matches++
		}
	}
	return 2 * float64(matches) / float64(total)
}
