package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const (
	userKeyPrefix     = "user:"
	usernameKeyPrefix = "user:username:"
	emailKeyPrefix    = "user:email:"
	userListKey       = "users"

	// CodeStoreFailed は Redis 操作の失敗を表すエラーコードです。
	CodeStoreFailed = "STORE_FAILED"
)

// RedisStore はユーザーを Redis に保存します。
//
// キー構成:
//   - user:<id>              ユーザーの JSON
//   - user:username:<name>   最初に登録されたユーザーの ID（SETNX）
//   - user:email:<email>     最初に登録されたユーザーの ID（SETNX）
//   - users                  登録順の ID リスト
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// FindByUsername はユーザー名インデックスを引いてユーザーを返します。
func (s *RedisStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	id, err := s.rdb.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, storeError("find by username", err)
	}
	return s.FindByID(ctx, id)
}

// FindByID は ID に一致するユーザーを返します。
func (s *RedisStore) FindByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, storeError("find by id", err)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, storeError("decode user", err)
	}
	return &user, nil
}

// Insert はインデックスを SETNX で確保してからユーザーを保存します。
// 途中で失敗した場合は確保済みのインデックスを解放します。
func (s *RedisStore) Insert(ctx context.Context, user *User, c Constraints) (err error) {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return storeError("encode user", err)
	}

	var claimed []string
	defer func() {
		if err != nil && len(claimed) > 0 {
			_ = s.rdb.Del(context.WithoutCancel(ctx), claimed...).Err()
		}
	}()

	ok, err := s.rdb.SetNX(ctx, usernameKey(user.Username), user.ID, 0).Result()
	if err != nil {
		return storeError("claim username", err)
	}
	if ok {
		claimed = append(claimed, usernameKey(user.Username))
	} else if c.UniqueUsername {
		return ErrUsernameTaken
	}

	ok, err = s.rdb.SetNX(ctx, emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return storeError("claim email", err)
	}
	if ok {
		claimed = append(claimed, emailKey(user.Email))
	} else if c.UniqueEmail {
		return ErrEmailTaken
	}

	ok, err = s.rdb.SetNX(ctx, userKey(user.ID), payload, 0).Result()
	if err != nil {
		return storeError("save user", err)
	}
	if !ok {
		return ErrDuplicateID
	}
	claimed = append(claimed, userKey(user.ID))

	if err := s.rdb.RPush(ctx, userListKey, user.ID).Err(); err != nil {
		return storeError("append user list", err)
	}
	return nil
}

// List は登録順に全ユーザーを返します。
func (s *RedisStore) List(ctx context.Context) ([]*User, error) {
	ids, err := s.rdb.LRange(ctx, userListKey, 0, -1).Result()
	if err != nil {
		return nil, storeError("list user ids", err)
	}
	if len(ids) == 0 {
		return []*User{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("load users", err)
	}

	users := make([]*User, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// 外部から削除されたキーは飛ばす
			continue
		}
		var user User
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil, storeError("decode user", err)
		}
		users = append(users, &user)
	}
	return users, nil
}

func storeError(operation string, err error) error {
	return oops.Code(CodeStoreFailed).With("operation", operation).Wrap(err)
}

func userKey(id string) string {
	return userKeyPrefix + id
}

func usernameKey(username string) string {
	return usernameKeyPrefix + username
}

func emailKey(email string) string {
	return emailKeyPrefix + email
}
