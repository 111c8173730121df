package forms

// NonFieldErrors は特定のフィールドに属さないエラーのキーです。
const NonFieldErrors = "__all__"

// FieldError は 1 件の入力エラーです。
type FieldError struct {
	Field   string
	Label   string
	Message string
}

// Errors は入力エラーを発生順に保持します。
type Errors []FieldError

// Add はフィールドにエラーを追加します。
func (e *Errors) Add(field, message string) {
	*e = append(*e, FieldError{Field: field, Label: Label(field), Message: message})
}

// Prepend はフィールドのエラーを先頭に追加します。
func (e *Errors) Prepend(field, message string) {
	*e = append(Errors{{Field: field, Label: Label(field), Message: message}}, *e...)
}

// Any はエラーが 1 件以上あるかを返します。
func (e Errors) Any() bool {
	return len(e) > 0
}

// Has はフィールドにエラーがあるかを返します。
func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// For はフィールドのエラーメッセージを返します。
func (e Errors) For(field string) []string {
	var messages []string
	for _, fe := range e {
		if fe.Field == field {
			messages = append(messages, fe.Message)
		}
	}
	return messages
}

// Items は「ラベル: メッセージ」形式の一覧を返します。フォーム全体のエラーはメッセージのみです。
func (e Errors) Items() []string {
	items := make([]string, 0, len(e))
	for _, fe := range e {
		if fe.Field == NonFieldErrors {
			items = append(items, fe.Message)
			continue
		}
		items = append(items, fe.Label+": "+fe.Message)
	}
	return items
}

var labels = map[string]string{
	NonFieldErrors:  "入力",
	"username":      "ユーザー名",
	"email":         "メールアドレス",
	"password":      "パスワード",
	"password1":     "パスワード",
	"password2":     "パスワード（確認用）",
	"old_password":  "元のパスワード",
	"new_password1": "新しいパスワード",
	"new_password2": "新しいパスワード（確認用）",
}

// Label はフィールド名の表示名を返します。
func Label(field string) string {
	if label, ok := labels[field]; ok {
		return label
	}
	return field
}
