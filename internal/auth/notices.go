package auth

import (
	"encoding/gob"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// 通知の種類。
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice は次の画面表示で一度だけ出す通知です。
type Notice struct {
	Level string
	Text  string
}

func init() {
	// クッキーストアは gob でエンコードするため具体型の登録が必要
	gob.Register(Notice{})
}

// AddNotice は通知を積みます。保存は Save、Login、Logout などで行われます。
func (m *Manager) AddNotice(c *gin.Context, level, text string) {
	sessions.Default(c).AddFlash(Notice{Level: level, Text: text})
}

// Notices は積まれた通知を取り出します。取り出した場合のみセッションを保存します。
func (m *Manager) Notices(c *gin.Context) ([]Notice, error) {
	session := sessions.Default(c)
	flashes := session.Flashes()
	if len(flashes) == 0 {
		return nil, nil
	}

	notices := make([]Notice, 0, len(flashes))
	for _, f := range flashes {
		if n, ok := f.(Notice); ok {
			notices = append(notices, n)
		}
	}
	if err := session.Save(); err != nil {
		return notices, err
	}
	return notices, nil
}
