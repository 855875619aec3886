// Package auth はユーザー登録・ログイン・セッション判定を提供します。
package auth

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/sessions"

	"github.com/yourusername/passgate/internal/credential"
	"github.com/yourusername/passgate/internal/logging"
	"github.com/yourusername/passgate/internal/metrics"
	"github.com/yourusername/passgate/internal/storage"
)

const (
	SessionCookieName    = "passgate_session"
	sessionKeyUser       = "auth_user"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// Manager は HTTP 層から認証処理をまとめて扱うための構造体です。
type Manager struct {
	gate      *Gate
	strategy  Strategy
	validator *credential.Validator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// ManagerOptions は Manager の設定です。
type ManagerOptions struct {
	Gate      *Gate
	Strategy  Strategy
	Validator *credential.Validator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// NewManager は認証マネージャーを作成します。
func NewManager(opts ManagerOptions) *Manager {
	if opts.Validator == nil {
		opts.Validator = credential.NewValidator()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Manager{
		gate:      opts.Gate,
		strategy:  opts.Strategy,
		validator: opts.Validator,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func (m *Manager) SessionMaxAgeSeconds() int {
	return int(m.gate.MaxLifetime().Seconds())
}

// startSession はログイン済みユーザーをセッションに書き込みます。
// 既存の値（フラッシュを含む）は破棄します。
func (m *Manager) startSession(session sessions.Session, user *storage.User) error {
	now := m.gate.Now()
	session.Clear()
	session.Set(sessionKeyUser, user.ID)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	return session.Save()
}

func readSessionState(session sessions.Session) SessionState {
	userID, _ := session.Get(sessionKeyUser).(string)
	return SessionState{
		UserID:     userID,
		IssuedAt:   readUnix(session.Get(sessionKeyIssuedAt)),
		LastActive: readUnix(session.Get(sessionKeyLastActive)),
	}
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
