// Package migrations はアカウントテーブルのスキーマを goose 形式で埋め込みます。
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
