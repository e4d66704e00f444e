// Package metrics 将重算引擎的运行情况导出为 Prometheus 指标。
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/langchou/carnote/internal/consumption"
)

// 重算结果标签
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// PromSink 记录重算次数、耗时与处理的记录数
type PromSink struct {
	recalculations *prometheus.CounterVec
	duration       prometheus.Histogram
	events         prometheus.Counter
}

var _ consumption.Observer = (*PromSink)(nil)

// NewPromSink 在 reg 上注册指标，reg 为 nil 时使用默认注册器。
// 重复注册时复用已有的指标。
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	recalculations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "carnote",
		Name:      "recalculations_total",
		Help:      "Total number of per-vehicle consumption recalculations",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "carnote",
		Name:      "recalculation_duration_seconds",
		Help:      "Duration of a single vehicle recalculation",
		Buckets:   prometheus.DefBuckets,
	}))
	if err != nil {
		return nil, err
	}
	events, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "carnote",
		Name:      "recalculated_events_total",
		Help:      "Total number of energy logs processed by recalculations",
	}))
	if err != nil {
		return nil, err
	}

	return &PromSink{recalculations: recalculations, duration: duration, events: events}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveRecalculation 实现 consumption.Observer
func (s *PromSink) ObserveRecalculation(_ int64, events int, elapsed time.Duration, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	s.recalculations.WithLabelValues(result).Inc()
	s.duration.Observe(elapsed.Seconds())
	if err == nil {
		s.events.Add(float64(events))
	}
}
