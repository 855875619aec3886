package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/yourusername/passgate/internal/credential"
	"github.com/yourusername/passgate/internal/logging"
	"github.com/yourusername/passgate/internal/metrics"
	"github.com/yourusername/passgate/internal/storage"
)

// UniquenessPolicy は登録時に重複を拒否する範囲です。
type UniquenessPolicy string

const (
	// PolicyUnspecified は重複チェックを行いません。ログインは最初に登録されたユーザーに解決されます。
	PolicyUnspecified   UniquenessPolicy = "unspecified"
	PolicyUsername      UniquenessPolicy = "username"
	PolicyUsernameEmail UniquenessPolicy = "username_email"
)

// ParsePolicy は設定値を UniquenessPolicy に変換します。空文字は unspecified です。
func ParsePolicy(s string) (UniquenessPolicy, error) {
	switch p := UniquenessPolicy(s); p {
	case "":
		return PolicyUnspecified, nil
	case PolicyUnspecified, PolicyUsername, PolicyUsernameEmail:
		return p, nil
	default:
		return "", fmt.Errorf("unknown uniqueness policy: %q", s)
	}
}

// Constraints はポリシーをストアの制約に変換します。
func (p UniquenessPolicy) Constraints() storage.Constraints {
	return storage.Constraints{
		UniqueUsername: p == PolicyUsername || p == PolicyUsernameEmail,
		UniqueEmail:    p == PolicyUsernameEmail,
	}
}

// セッション判定の理由
const (
	ReasonNone         = ""
	ReasonNoSession    = "no_session"
	ReasonExpired      = "expired"
	ReasonIdle         = "idle"
	ReasonUnknownUser  = "unknown_user"
	ReasonLookupFailed = "lookup_failed"
)

// SessionState はセッションから読み出した認証情報です。
type SessionState struct {
	UserID     string
	IssuedAt   time.Time
	LastActive time.Time
}

// Decision はセッション判定の結果です。User が nil なら未認証です。
type Decision struct {
	User   *storage.User
	Reason string
}

// Authenticated は認証済みかどうかを返します。
func (d Decision) Authenticated() bool {
	return d.User != nil
}

// ClearSession はセッションを破棄すべき判定かどうかを返します。
// ストア障害ではセッションを残します。
func (d Decision) ClearSession() bool {
	switch d.Reason {
	case ReasonExpired, ReasonIdle, ReasonUnknownUser:
		return true
	default:
		return false
	}
}

// GateOptions は Gate の設定です。
type GateOptions struct {
	Policy      UniquenessPolicy
	MaxLifetime time.Duration
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Gate は登録とセッション判定を担います。HTTP には依存しません。
type Gate struct {
	users       storage.UserStore
	hasher      PasswordHasher
	policy      UniquenessPolicy
	maxLifetime time.Duration
	idleTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewGate は Gate を作成します。
func NewGate(users storage.UserStore, hasher PasswordHasher, opts GateOptions) *Gate {
	if opts.Policy == "" {
		opts.Policy = PolicyUnspecified
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = 12 * time.Hour
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		users:       users,
		hasher:      hasher,
		policy:      opts.Policy,
		maxLifetime: opts.MaxLifetime,
		idleTimeout: opts.IdleTimeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
}

// MaxLifetime はセッションの最大寿命を返します。
func (g *Gate) MaxLifetime() time.Duration {
	return g.maxLifetime
}

// Register はパスワードをハッシュ化してユーザーを作成・保存します。
// 重複は credential.ValidationErrors（rule=taken）として返します。
func (g *Gate) Register(ctx context.Context, cred credential.Credential) (*storage.User, error) {
	hash, err := g.hasher.Hash(ctx, cred.Password)
	if err != nil {
		g.metrics.ObserveRegistration(metrics.ResultHashFailed)
		return nil, err
	}

	user, err := storage.NewUser(cred.Username, cred.Email, hash)
	if err != nil {
		g.metrics.ObserveRegistration(metrics.ResultStoreFailed)
		return nil, oops.Code(storage.CodeStoreFailed).With("operation", "new id").Wrap(err)
	}

	if err := g.users.Insert(ctx, user, g.policy.Constraints()); err != nil {
		switch {
		case errors.Is(err, storage.ErrUsernameTaken):
			g.metrics.ObserveRegistration(metrics.ResultTaken)
			return nil, credential.ValidationErrors{{
				Field:   credential.FieldUsername,
				Rule:    credential.RuleTaken,
				Message: "このユーザー名は既に使われています。",
			}}
		case errors.Is(err, storage.ErrEmailTaken):
			g.metrics.ObserveRegistration(metrics.ResultTaken)
			return nil, credential.ValidationErrors{{
				Field:   credential.FieldEmail,
				Rule:    credential.RuleTaken,
				Message: "このメールアドレスは既に登録されています。",
			}}
		}
		g.metrics.ObserveRegistration(metrics.ResultStoreFailed)
		if _, ok := oops.AsOops(err); ok {
			return nil, err
		}
		return nil, oops.Code(storage.CodeStoreFailed).With("operation", "insert").Wrap(err)
	}

	g.metrics.ObserveRegistration(metrics.ResultSuccess)
	g.logger.InfoContext(ctx, "user registered", "user", user)
	g.logSnapshot(ctx)
	return user, nil
}

// userSummary はログ出力用のユーザー情報です。ハッシュは含めません。
type userSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// logSnapshot はストアの内容を診断ログに出します。
func (g *Gate) logSnapshot(ctx context.Context) {
	users, err := g.users.List(ctx)
	if err != nil {
		g.logger.WarnContext(ctx, "list users for snapshot", "error", err)
		return
	}
	summary := make([]userSummary, len(users))
	for i, u := range users {
		summary[i] = userSummary{ID: u.ID, Username: u.Username, Email: u.Email}
	}
	g.logger.InfoContext(ctx, "user store snapshot", "count", len(users), "users", summary)
}

// CheckSession はセッションの有効期限とユーザーの存在を確認します。
func (g *Gate) CheckSession(ctx context.Context, state SessionState) Decision {
	if state.UserID == "" {
		return Decision{Reason: ReasonNoSession}
	}

	now := g.now()
	if state.IssuedAt.IsZero() || now.Sub(state.IssuedAt) > g.maxLifetime {
		return Decision{Reason: ReasonExpired}
	}
	if state.LastActive.IsZero() || now.Sub(state.LastActive) > g.idleTimeout {
		return Decision{Reason: ReasonIdle}
	}

	user, err := g.users.FindByID(ctx, state.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Decision{Reason: ReasonUnknownUser}
		}
		g.logger.ErrorContext(ctx, "session user lookup failed", "error", err)
		return Decision{Reason: ReasonLookupFailed}
	}
	return Decision{User: user}
}

// Now は Gate の現在時刻を返します。
func (g *Gate) Now() time.Time {
	return g.now()
}
