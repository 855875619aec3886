// Package storage はユーザーストアの抽象化レイヤーを提供します。
//
// ストアインターフェース:
//
//	type UserStore interface {
//	    FindByUsername(ctx, username) (*User, error)
//	    FindByID(ctx, id) (*User, error)
//	    Insert(ctx, user, constraints) error
//	    List(ctx) ([]*User, error)
//	}
//
// 実装:
//   - LocalStore: プロセス内メモリ（再起動で消える。開発・テスト用）
//   - RedisStore: Redis へ JSON で保存（複数プロセスから共有可能）
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrDuplicateID   = errors.New("user id already exists")
	ErrUsernameTaken = errors.New("username already registered")
	ErrEmailTaken    = errors.New("email already registered")
)

// Constraints は Insert 時に強制する一意性制約です。
// 判定と追加はストア内で不可分に行われます。
type Constraints struct {
	UniqueUsername bool
	UniqueEmail    bool
}

// UserStore はユーザーの保存と検索を行います。実装は並行利用に対応している必要があります。
type UserStore interface {
	// FindByUsername は username が一致するユーザーのうち最初に登録されたものを返します。
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Insert(ctx context.Context, user *User, c Constraints) error
	// List は登録順に全ユーザーを返します。
	List(ctx context.Context) ([]*User, error)
}
