package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

// stores は同じ契約を満たすべき実装の一覧です。
func stores() map[string]func(t *testing.T) UserStore {
	return map[string]func(t *testing.T) UserStore{
		"local": func(*testing.T) UserStore { return NewLocalStore() },
		"redis": func(t *testing.T) UserStore {
			client, _ := setupTestRedis(t)
			return NewRedisStore(client)
		},
	}
}

func mustUser(t *testing.T, username, email string) *User {
	t.Helper()
	u, err := NewUser(username, email, "$2a$10$hash-of-"+username)
	require.NoError(t, err)
	return u
}

func TestNewUser(t *testing.T) {
	a := mustUser(t, "alice1", "a@b.com")
	b := mustUser(t, "alice1", "a@b.com")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestUserLogValueOmitsHash(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	u := mustUser(t, "alice1", "a@b.com")

	logger.Info("registered", "user", u)

	out := buf.String()
	assert.Contains(t, out, "alice1")
	assert.Contains(t, out, u.ID)
	assert.NotContains(t, out, "hash-of")
}

func TestStoreInsertAndFind(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			u := mustUser(t, "alice1", "a@b.com")

			require.NoError(t, store.Insert(ctx, u, Constraints{}))

			byName, err := store.FindByUsername(ctx, "alice1")
			require.NoError(t, err)
			assert.Equal(t, u.ID, byName.ID)
			assert.Equal(t, u.PasswordHash, byName.PasswordHash)

			byID, err := store.FindByID(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "a@b.com", byID.Email)
			assert.True(t, u.CreatedAt.Equal(byID.CreatedAt))
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			_, err := store.FindByUsername(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.FindByID(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.FindByID(ctx, "")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreDuplicatesAllowedWithoutConstraints(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			first := mustUser(t, "alice1", "a@b.com")
			second := mustUser(t, "alice1", "a@b.com")

			require.NoError(t, store.Insert(ctx, first, Constraints{}))
			require.NoError(t, store.Insert(ctx, second, Constraints{}))

			found, err := store.FindByUsername(ctx, "alice1")
			require.NoError(t, err)
			assert.Equal(t, first.ID, found.ID, "lookup must resolve the first registered user")

			all, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestStoreUniqueConstraints(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			strict := Constraints{UniqueUsername: true, UniqueEmail: true}

			require.NoError(t, store.Insert(ctx, mustUser(t, "alice1", "a@b.com"), strict))

			err := store.Insert(ctx, mustUser(t, "alice1", "other@b.com"), strict)
			assert.ErrorIs(t, err, ErrUsernameTaken)

			err = store.Insert(ctx, mustUser(t, "carol1", "a@b.com"), strict)
			assert.ErrorIs(t, err, ErrEmailTaken)

			// 失敗した登録はインデックスを残さない
			require.NoError(t, store.Insert(ctx, mustUser(t, "carol1", "c@b.com"), strict))

			all, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestStoreDuplicateID(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			u := mustUser(t, "alice1", "a@b.com")

			require.NoError(t, store.Insert(ctx, u, Constraints{}))
			dup := *u
			dup.Username = "other1"
			dup.Email = "o@b.com"
			assert.ErrorIs(t, store.Insert(ctx, &dup, Constraints{}), ErrDuplicateID)
		})
	}
}

func TestStoreListKeepsOrder(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			var ids []string
			for i := 0; i < 5; i++ {
				u := mustUser(t, fmt.Sprintf("user%03d", i), fmt.Sprintf("u%d@b.com", i))
				require.NoError(t, store.Insert(ctx, u, Constraints{}))
				ids = append(ids, u.ID)
			}

			all, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, len(ids))
			for i, u := range all {
				assert.Equal(t, ids[i], u.ID)
			}
		})
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	for name, newStore := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			u := mustUser(t, "alice1", "a@b.com")
			require.NoError(t, store.Insert(ctx, u, Constraints{}))

			u.Username = "mutated"
			found, err := store.FindByID(ctx, u.ID)
			require.NoError(t, err)
			found.Email = "mutated@b.com"

			again, err := store.FindByID(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "alice1", again.Username)
			assert.Equal(t, "a@b.com", again.Email)
		})
	}
}

func TestLocalStoreConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore()
	strict := Constraints{UniqueUsername: true}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := NewUser("racer1", fmt.Sprintf("r%d@b.com", i), "hash")
			if err != nil {
				return
			}
			if store.Insert(ctx, u, strict) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestLocalStoreCanceledContext(t *testing.T) {
	store := NewLocalStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Insert(ctx, mustUser(t, "alice1", "a@b.com"), Constraints{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStoreFailure(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	mr.Close()

	_, err := store.FindByUsername(context.Background(), "alice1")
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, CodeStoreFailed, oopsErr.Code())
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRedisStoreKeys(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	u := mustUser(t, "alice1", "a@b.com")

	require.NoError(t, store.Insert(context.Background(), u, Constraints{}))

	id, err := mr.Get("user:username:alice1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.True(t, mr.Exists("user:email:a@b.com"))
	raw, err := mr.Get("user:" + u.ID)
	require.NoError(t, err)
	assert.True(t, strings.Contains(raw, `"username":"alice1"`), raw)
}

func TestRedisStoreListSkipsDeletedUsers(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	a := mustUser(t, "alice1", "a@b.com")
	b := mustUser(t, "bobby1", "b@b.com")
	require.NoError(t, store.Insert(ctx, a, Constraints{}))
	require.NoError(t, store.Insert(ctx, b, Constraints{}))

	mr.Del("user:" + a.ID)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}
