package storage

import (
	"context"
	"fmt"
	"sync"
)

// LocalStore はプロセス内メモリにユーザーを保持します。
type LocalStore struct {
	mu    sync.RWMutex
	users []*User
	byID  map[string]*User
}

// NewLocalStore は空の LocalStore を作成します。
func NewLocalStore() *LocalStore {
	return &LocalStore{
		byID: make(map[string]*User),
	}
}

// FindByUsername は最初に登録された一致ユーザーを返します。
func (s *LocalStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

// FindByID は ID に一致するユーザーを返します。
func (s *LocalStore) FindByID(ctx context.Context, id string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

// Insert は制約を確認したうえでユーザーを末尾に追加します。
func (s *LocalStore) Insert(ctx context.Context, user *User, c Constraints) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[user.ID]; exists {
		return ErrDuplicateID
	}
	if c.UniqueUsername && s.contains(func(u *User) bool { return u.Username == user.Username }) {
		return ErrUsernameTaken
	}
	if c.UniqueEmail && s.contains(func(u *User) bool { return u.Email == user.Email }) {
		return ErrEmailTaken
	}

	stored := clone(user)
	s.users = append(s.users, stored)
	s.byID[stored.ID] = stored
	return nil
}

// List は登録順に全ユーザーのコピーを返します。
func (s *LocalStore) List(ctx context.Context) ([]*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, len(s.users))
	for i, u := range s.users {
		users[i] = clone(u)
	}
	return users, nil
}

func (s *LocalStore) contains(match func(*User) bool) bool {
	for _, u := range s.users {
		if match(u) {
			return true
		}
	}
	return false
}

func clone(u *User) *User {
	c := *u
	return &c
}
