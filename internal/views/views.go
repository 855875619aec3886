// Package views はサーバーサイドで描画する画面テンプレートを提供します。
package views

import (
	"embed"
	"html/template"
)

// テンプレート名
const (
	Login    = "login.html"
	Register = "register.html"
	Home     = "home.html"
)

//go:embed templates/*.html
var files embed.FS

// Load は埋め込みテンプレートをすべて読み込みます。
func Load() (*template.Template, error) {
	return template.ParseFS(files, "templates/*.html")
}

// FormData はログイン・登録フォームに渡す値です。
type FormData struct {
	Notices []string
}

// HomeData はホーム画面に渡す値です。
type HomeData struct {
	Username string
}
