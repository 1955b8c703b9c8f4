// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// accountパッケージとauthパッケージのMetricsRecorderインターフェースを満たす。
type Collector struct {
	signups          *prometheus.CounterVec
	duplicateSignups prometheus.Counter
	signIns          *prometheus.CounterVec
	notificationFail prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codequest_signup_total",
			Help: "新規アカウント作成の合計数（権限別）",
		}, []string{"role"}),
		duplicateSignups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codequest_signup_duplicate_total",
			Help: "メールアドレス重複で拒否されたサインアップの合計数",
		}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codequest_signin_total",
			Help: "サインイン成功の合計数（新規作成かどうか別）",
		}, []string{"new_account"}),
		notificationFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codequest_notification_fail_total",
			Help: "ウェルカムメール送信失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codequest_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.signups,
		c.duplicateSignups,
		c.signIns,
		c.notificationFail,
		c.httpStatus,
	)

	return c
}

// RecordSignup は新規アカウント作成を記録する。
func (c *Collector) RecordSignup(role string) {
	c.signups.WithLabelValues(role).Inc()
}

// RecordDuplicateSignup は重複サインアップの拒否を記録する。
func (c *Collector) RecordDuplicateSignup() {
	c.duplicateSignups.Inc()
}

// RecordSignIn はサインイン成功を記録する。
func (c *Collector) RecordSignIn(newAccount bool) {
	c.signIns.WithLabelValues(strconv.FormatBool(newAccount)).Inc()
}

// RecordNotificationFailure はウェルカムメール送信失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notificationFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// ルーターの /metrics パスに直接マウントする。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
