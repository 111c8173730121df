// Package events はアカウント操作の記録（アクティビティ）を扱います。
package events

import "time"

// Type はアカウント操作の種類を表します。
type Type string

const (
	TypeRegistered      Type = "registered"
	TypeLoggedIn        Type = "logged_in"
	TypeLoginFailed     Type = "login_failed"
	TypeLoggedOut       Type = "logged_out"
	TypePasswordChanged Type = "password_changed"
)

// Event は 1 件のアカウント操作です。
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	AccountID  string    `json:"accountId,omitempty"`
	Username   string    `json:"username"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	Client     string    `json:"client,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
