// Package metrics は認証処理の Prometheus メトリクスを提供します。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 登録・ログイン結果のラベル値
const (
	ResultSuccess     = "success"
	ResultInvalid     = "invalid"
	ResultTaken       = "taken"
	ResultHashFailed  = "hash_failed"
	ResultStoreFailed = "store_failed"
	ResultFailure     = "failure"
)

// Metrics は認証処理のメトリクスをまとめた構造体です。
// nil の *Metrics に対する記録は何もしません。
type Metrics struct {
	Registrations *prometheus.CounterVec
	Logins        *prometheus.CounterVec
	HashDuration  *prometheus.HistogramVec
}

// New はメトリクスを作成し reg に登録します。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passgate_registrations_total",
				Help: "Total number of registration attempts by result",
			},
			[]string{"result"},
		),
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passgate_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passgate_password_hash_duration_seconds",
				Help:    "Latency of password hash and verify operations in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
	}

	reg.MustRegister(m.Registrations, m.Logins, m.HashDuration)
	return m
}

// ObserveRegistration は登録結果を記録します。
func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(result).Inc()
}

// ObserveLogin はログイン結果を記録します。
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

// ObserveHash はハッシュ処理の所要時間を記録します。operation は hash または verify。
func (m *Metrics) ObserveHash(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.HashDuration.WithLabelValues(operation).Observe(d.Seconds())
}
