package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 结果标签取值
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	MigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcana",
		Name:      "schema_migrations_total",
		Help:      "Schema migrations applied or rolled back, by direction and result.",
	}, []string{"direction", "result"})

	SyncFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcana",
		Name:      "store_sync_flushes_total",
		Help:      "Database sync flush cycles, by store and result.",
	}, []string{"store", "result"})

	SyncFieldErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcana",
		Name:      "store_sync_field_errors_total",
		Help:      "Sync strategy failures, by store and field.",
	}, []string{"store", "field"})

	PersistWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arcana",
		Name:      "store_persist_writes_total",
		Help:      "Persisted store snapshots, by store and result.",
	}, []string{"store", "result"})

	DailySessionsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arcana",
		Name:      "daily_sessions_generated_total",
		Help:      "Daily sessions generated or regenerated.",
	})
)

// Handler 暴露 /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
