package auth

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/samber/oops"

	"github.com/yourusername/passgate/internal/storage"
)

const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnknownStrategy    = "AUTH_UNKNOWN_STRATEGY"

	// StrategyLocal はユーザー名とパスワードによる認証方式の名前です。
	StrategyLocal = "local"
)

// ErrInvalidCredentials はユーザー名・パスワードのどちらが誤っていても同じく返します。
// errors.Is の比較対象にするため oops ではなく素のエラーです。返すときは invalidCredentials で包みます。
var ErrInvalidCredentials = errors.New("invalid username or password")

func invalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Wrap(ErrInvalidCredentials)
}

// dummyPassword は存在しないユーザーの照合に使うハッシュの元です。どのアカウントにも対応しません。
const dummyPassword = "passgate-timing-equalizer-0"

// Credentials はログインフォームの入力です。
type Credentials struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Strategy は認証方式です。方式ごとに実装を用意し、設定で選択します。
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) (*storage.User, error)
}

// LocalStrategy はユーザーストアと PasswordHasher による認証です。
type LocalStrategy struct {
	users     storage.UserStore
	hasher    PasswordHasher
	dummyHash string
}

// NewLocalStrategy は LocalStrategy を作成します。
// 存在しないユーザーの照合に使うダミーハッシュをここで計算し、失敗した場合はエラーを返します。
func NewLocalStrategy(ctx context.Context, users storage.UserStore, hasher PasswordHasher) (*LocalStrategy, error) {
	dummy, err := hasher.Hash(ctx, dummyPassword)
	if err != nil {
		return nil, oops.With("operation", "dummy hash").Wrap(err)
	}
	return &LocalStrategy{
		users:     users,
		hasher:    hasher,
		dummyHash: dummy,
	}, nil
}

// Name は方式名を返します。
func (s *LocalStrategy) Name() string {
	return StrategyLocal
}

// Authenticate はユーザー名で検索し、パスワードを検証します。
// ユーザーが存在しない場合もダミーハッシュで検証を行い、応答時間を揃えます。
func (s *LocalStrategy) Authenticate(ctx context.Context, creds Credentials) (*storage.User, error) {
	user, err := s.users.FindByUsername(ctx, creds.Username)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	target := s.dummyHash
	if user != nil {
		target = user.PasswordHash
	}

	// 照合できなかった場合はユーザーの有無に関係なく同じエラーを返す
	valid, err := s.hasher.Verify(ctx, creds.Password, target)
	if err != nil {
		return nil, err
	}
	if user == nil || !valid {
		return nil, invalidCredentials()
	}
	return user, nil
}

// Registry は名前で認証方式を引き当てます。
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry は与えられた方式を登録した Registry を作成します。
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.Name()] = s
	}
	return r
}

// Get は名前に対応する方式を返します。
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, oops.Code(CodeUnknownStrategy).
			With("available", strings.Join(r.Names(), ",")).
			Errorf("unknown authentication strategy: %q", name)
	}
	return s, nil
}

// Names は登録済みの方式名をソートして返します。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
