package events

import (
	"context"

	"github.com/mileusna/useragent"

	"github.com/yourusername/hx-accounts/internal/logging"
)

// Publisher はアカウント操作を記録先へ送ります。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Reader はアカウントごとの最近の操作を返します。
type Reader interface {
	Recent(ctx context.Context, accountID string, limit int) ([]Event, error)
}

// LogPublisher はキューを使わず、操作をログに出力するだけの Publisher です。
type LogPublisher struct {
	log logging.Logger
}

// NewLogPublisher は LogPublisher を作成します。
func NewLogPublisher(log logging.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.log.Info(ctx, "account event",
		"type", string(event.Type),
		"username", event.Username,
		"account_id", event.AccountID,
		"remote_addr", event.RemoteAddr,
		"client", event.Client,
	)
	return nil
}

// ClientFromUserAgent は User-Agent をブラウザ名と端末種別の短い表記にします。
func ClientFromUserAgent(header string) string {
	if header == "" {
		return ""
	}
	ua := useragent.Parse(header)

	var mode string
	switch {
	case ua.Bot:
		mode = "bot"
	case ua.Mobile:
		mode = "phone"
	case ua.Tablet:
		mode = "tablet"
	case ua.Desktop:
		mode = "desktop"
	default:
		mode = "unknown"
	}

	name := ua.Name
	if name == "" {
		name = "unknown"
	}
	if ua.OS != "" {
		return name + "/" + mode + " on " + ua.OS
	}
	return name + "/" + mode
}
