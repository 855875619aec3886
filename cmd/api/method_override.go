package main

import (
	"net/http"
	"strings"
)

const methodOverrideParam = "_method"

// methodOverride は POST リクエストの _method（クエリまたはフォーム）で DELETE を指定できるようにします。
// HTML フォームからログアウトするためのもので、DELETE 以外への変換は行いません。
func methodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			method := r.URL.Query().Get(methodOverrideParam)
			if method == "" && isFormRequest(r) {
				method = r.PostFormValue(methodOverrideParam)
			}
			if strings.EqualFold(method, http.MethodDelete) {
				r.Method = http.MethodDelete
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isFormRequest(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}
