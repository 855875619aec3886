package auth

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/passgate/internal/credential"
	"github.com/yourusername/passgate/internal/metrics"
	"github.com/yourusername/passgate/internal/views"
)

const registerPath = "/register"

// フラッシュメッセージ
const (
	noticeInvalidCredentials = "ユーザー名またはパスワードが正しくありません。"
	noticeLoginUnavailable   = "ログイン処理に失敗しました。時間をおいて再度お試しください。"
	noticeRegistered         = "登録が完了しました。ログインしてください。"
	noticeRegisterFailed     = "登録処理に失敗しました。お手数ですが最初から入力し直してください。"
)

// Home は / のハンドラーです。RequireLogin の後ろで使います。
func (m *Manager) Home(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusFound, loginPath)
		return
	}
	c.HTML(http.StatusOK, views.Home, views.HomeData{Username: user.Username})
}

// LoginForm は GET /login のハンドラーです。
func (m *Manager) LoginForm(c *gin.Context) {
	c.HTML(http.StatusOK, views.Login, views.FormData{Notices: m.popNotices(c)})
}

// RegisterForm は GET /register のハンドラーです。
func (m *Manager) RegisterForm(c *gin.Context) {
	c.HTML(http.StatusOK, views.Register, views.FormData{Notices: m.popNotices(c)})
}

// Login は POST /login のハンドラーです。
// 失敗理由はユーザー名とパスワードのどちらが誤っていたかを区別しません。
func (m *Manager) Login(c *gin.Context) {
	var creds Credentials
	if err := c.ShouldBind(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と password を送ってください",
		})
		return
	}

	ctx := c.Request.Context()
	user, err := m.strategy.Authenticate(ctx, creds)
	if err != nil {
		notice := noticeInvalidCredentials
		if errors.Is(err, ErrInvalidCredentials) {
			m.metrics.ObserveLogin(metrics.ResultInvalid)
			m.logger.InfoContext(ctx, "login rejected", "strategy", m.strategy.Name())
		} else {
			notice = noticeLoginUnavailable
			m.metrics.ObserveLogin(metrics.ResultFailure)
			m.logger.ErrorContext(ctx, "login failed", "strategy", m.strategy.Name(), "error", err)
		}
		m.redirectWithNotice(c, loginPath, notice)
		return
	}

	if err := m.startSession(sessions.Default(c), user); err != nil {
		m.metrics.ObserveLogin(metrics.ResultFailure)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	m.metrics.ObserveLogin(metrics.ResultSuccess)
	m.logger.InfoContext(ctx, "user logged in", "user", user)
	c.Redirect(http.StatusFound, homePath)
}

// Register は POST /register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var in credential.Input
	if err := c.ShouldBind(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "username と email と password を送ってください",
		})
		return
	}

	ctx := c.Request.Context()
	cred, err := m.validator.Validate(in)
	if err != nil {
		m.metrics.ObserveRegistration(metrics.ResultInvalid)
		m.respondValidation(c, err)
		return
	}

	if _, err := m.gate.Register(ctx, cred); err != nil {
		var verrs credential.ValidationErrors
		if errors.As(err, &verrs) {
			m.respondValidation(c, verrs)
			return
		}
		m.logger.ErrorContext(ctx, "registration failed", "error", err)
		m.redirectWithNotice(c, registerPath, noticeRegisterFailed)
		return
	}

	m.redirectWithNotice(c, loginPath, noticeRegistered)
}

// Logout は DELETE /logout のハンドラーです。セッション削除の失敗は利用者に返しません。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		m.logger.WarnContext(c.Request.Context(), "failed to clear session", "error", err)
	}
	c.Redirect(http.StatusFound, loginPath)
}

func (m *Manager) respondValidation(c *gin.Context, err error) {
	var verrs credential.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "入力の検証に失敗しました",
		})
		return
	}
	m.logger.InfoContext(c.Request.Context(), "registration input rejected", "errors", verrs.Error())
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"code":    "VALIDATION_FAILED",
		"message": "入力内容に誤りがあります",
		"errors":  verrs,
	})
}

// redirectWithNotice はフラッシュを保存してからリダイレクトします。
func (m *Manager) redirectWithNotice(c *gin.Context, location, notice string) {
	session := sessions.Default(c)
	session.AddFlash(notice)
	if err := session.Save(); err != nil {
		m.logger.WarnContext(c.Request.Context(), "failed to save flash", "error", err)
	}
	c.Redirect(http.StatusFound, location)
}

// popNotices はフラッシュを取り出します。取り出したフラッシュは次の表示には残りません。
func (m *Manager) popNotices(c *gin.Context) []string {
	session := sessions.Default(c)
	flashes := session.Flashes()
	if len(flashes) == 0 {
		return nil
	}
	if err := session.Save(); err != nil {
		m.logger.WarnContext(c.Request.Context(), "failed to consume flash", "error", err)
	}
	notices := make([]string, 0, len(flashes))
	for _, f := range flashes {
		if s, ok := f.(string); ok {
			notices = append(notices, s)
		}
	}
	return notices
}
