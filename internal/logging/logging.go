// Package logging はアプリケーション共通の構造化ロガーを提供します。
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Setup は service 属性付きの slog.Logger を作成します。
// format は "json" または "text"（空の場合は json）。w が nil の場合は標準エラーに出力します。
func Setup(service, format string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}

// Discard は出力を捨てるロガーを返します。テストや未設定時の既定値として使います。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
