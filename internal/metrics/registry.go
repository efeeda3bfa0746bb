package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// mustRegister регистрирует коллектор. Если метрика с тем же описанием уже есть,
// возвращает существующую: конструкторы метрик можно вызывать повторно, например в тестах.
func mustRegister[C prometheus.Collector](registerer prometheus.Registerer, collector C, name string) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		panic(fmt.Sprintf("register %s: %v", name, err))
	}
	existing, ok := dup.ExistingCollector.(C)
	if !ok {
		panic(fmt.Sprintf("%s is already registered as %T", name, dup.ExistingCollector))
	}
	return existing
}

func registerCounter(r prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return mustRegister(r, prometheus.NewCounter(opts), opts.Name)
}

func registerCounterVec(r prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	return mustRegister(r, prometheus.NewCounterVec(opts, labels), opts.Name)
}

func registerGauge(r prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return mustRegister(r, prometheus.NewGauge(opts), opts.Name)
}

func registerHistogram(r prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return mustRegister(r, prometheus.NewHistogram(opts), opts.Name)
}

func registerHistogramVec(r prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	return mustRegister(r, prometheus.NewHistogramVec(opts, labels), opts.Name)
}

// RegisterBuildInfo публикует checkout_build_info со значением 1 и метками сборки.
func RegisterBuildInfo(registerer prometheus.Registerer, version, commit string) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gauge := registerGauge(registerer, prometheus.GaugeOpts{
		Name:        "checkout_build_info",
		Help:        "Build metadata of the running checkout service",
		ConstLabels: prometheus.Labels{"version": version, "commit": commit},
	})
	gauge.Set(1)
}
