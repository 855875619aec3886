package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/passgate/internal/metrics"
)

// CodeHashingFailed はハッシュ計算・検証が完了できなかったことを表します。
const CodeHashingFailed = "HASHING_FAILED"

// PasswordHasher はパスワードの一方向ハッシュと検証を提供します。
type PasswordHasher interface {
	// Hash はソルト付きのハッシュを返します。
	Hash(ctx context.Context, password string) (string, error)

	// Verify は一致で (true, nil)、不一致で (false, nil)、処理できない場合に error を返します。
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// HasherOptions は BcryptHasher の設定です。
type HasherOptions struct {
	Cost        int           // bcrypt コスト
	Timeout     time.Duration // 待ち時間を含む1回あたりの上限（0 で無制限）
	Concurrency int           // 同時計算数の上限
	Metrics     *metrics.Metrics
}

// BcryptHasher は bcrypt による PasswordHasher 実装です。
// 計算は専用の goroutine で行い、セマフォで同時実行数を制限します。
type BcryptHasher struct {
	cost     int
	timeout  time.Duration
	sem      *semaphore.Weighted
	metrics  *metrics.Metrics
	generate func(password []byte, cost int) ([]byte, error)
	compare  func(hash, password []byte) error
}

// NewBcryptHasher は BcryptHasher を作成します。
func NewBcryptHasher(opts HasherOptions) *BcryptHasher {
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &BcryptHasher{
		cost:     opts.Cost,
		timeout:  opts.Timeout,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		metrics:  opts.Metrics,
		generate: bcrypt.GenerateFromPassword,
		compare:  bcrypt.CompareHashAndPassword,
	}
}

// Hash は bcrypt ハッシュを返します。
func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	var hash []byte
	err := h.run(ctx, "hash", func() error {
		var err error
		hash, err = h.generate([]byte(password), h.cost)
		return err
	})
	if err != nil {
		return "", oops.Code(CodeHashingFailed).With("operation", "hash").Wrap(err)
	}
	return string(hash), nil
}

// Verify は bcrypt の定数時間比較でパスワードを検証します。
func (h *BcryptHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	var match bool
	err := h.run(ctx, "verify", func() error {
		err := h.compare([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil
		}
		if err != nil {
			return err
		}
		match = true
		return nil
	})
	if err != nil {
		return false, oops.Code(CodeHashingFailed).With("operation", "verify").Wrap(err)
	}
	return match, nil
}

// run はセマフォを確保して fn を別 goroutine で実行し、完了かタイムアウトを待ちます。
// タイムアウト後も fn は最後まで走り、終わった時点でセマフォを返します。
func (h *BcryptHasher) run(ctx context.Context, operation string, fn func() error) error {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer h.sem.Release(1)
		done <- fn()
	}()

	select {
	case err := <-done:
		h.metrics.ObserveHash(operation, time.Since(start))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
