// Package logging はプロジェクト全体で使う構造化ログのインターフェースです。
package logging

import "context"

// Logger はコンテキスト付きの構造化ロガーです。
// 可変長引数はキーと値の組として解釈されます。
//
//	log.Info(ctx, "ログインしました", "username", name)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With は常に指定の属性を付与する子ロガーを返します。
	With(args ...any) Logger
}

type nopLogger struct{}

// Nop は何も出力しないロガーです。
func Nop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) Logger                  { return n }
