package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// User は登録済みユーザーを表します。作成後は変更しません。
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewUser は時刻順の UUIDv7 を ID に持つ User を作成します。
func NewUser(username, email, passwordHash string) (*User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}
	return &User{
		ID:           id.String(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// LogValue はログ出力用の表現です。パスワードハッシュは含めません。
func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("id", u.ID),
		slog.String("username", u.Username),
		slog.String("email", u.Email),
	)
}
