package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/passgate/internal/storage"
)

const (
	loginPath = "/login"
	homePath  = "/"
)

// RequireLogin は未認証のリクエストを /login へリダイレクトするミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := m.authenticate(c)
		if !ok {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// RequireGuest はログイン済みのリクエストを / へリダイレクトするミドルウェアを返します。
func (m *Manager) RequireGuest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.authenticate(c); ok {
			c.Redirect(http.StatusFound, homePath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// authenticate はセッションを判定し、有効なら最終操作時刻を更新します。
// 失効したセッションはここで破棄します。
func (m *Manager) authenticate(c *gin.Context) (*storage.User, bool) {
	session := sessions.Default(c)
	decision := m.gate.CheckSession(c.Request.Context(), readSessionState(session))

	if !decision.Authenticated() {
		if decision.ClearSession() {
			session.Delete(sessionKeyUser)
			session.Delete(sessionKeyIssuedAt)
			session.Delete(sessionKeyLastActive)
			if err := session.Save(); err != nil {
				m.logger.WarnContext(c.Request.Context(), "failed to clear expired session", "error", err)
			}
		}
		if decision.Reason != ReasonNoSession {
			m.logger.InfoContext(c.Request.Context(), "session rejected", "reason", decision.Reason)
		}
		return nil, false
	}

	session.Set(sessionKeyLastActive, m.gate.Now().Unix())
	if err := session.Save(); err != nil {
		m.logger.WarnContext(c.Request.Context(), "failed to refresh session activity", "error", err)
	}
	return decision.User, true
}

// CurrentUser はミドルウェアが設定したユーザーを返します。
func CurrentUser(c *gin.Context) (*storage.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*storage.User)
	return user, ok && user != nil
}
