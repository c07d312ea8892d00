package monitoring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Monitor struct {
	responseTime        *prometheus.HistogramVec
	backendResponseTime *prometheus.HistogramVec
	ldapMetric          *prometheus.GaugeVec

	logger *zerolog.Logger
}

func (m *Monitor) SetResponseTimeMetric(tags map[string]string, value float64) error {
	if m.responseTime == nil {
		return fmt.Errorf("metric not instantiated")
	}

	m.responseTime.With(tags).Observe(value)

	return nil
}

// SetBackendResponseTimeMetric records the latency of a single remote identity service call
func (m *Monitor) SetBackendResponseTimeMetric(tags map[string]string, value float64) error {
	if m.backendResponseTime == nil {
		return fmt.Errorf("metric not instantiated")
	}

	m.backendResponseTime.With(tags).Observe(value)

	return nil
}

func (m *Monitor) SetLDAPMetric(tags map[string]string, value float64) error {
	if m.ldapMetric == nil {
		return fmt.Errorf("metric not instantiated")
	}

	m.ldapMetric.With(tags).Set(value)

	return nil
}

func (m *Monitor) constLabels() map[string]string {
	return map[string]string{
		"library": "github.com/glauth/iamldap",
	}
}

func (m *Monitor) register(c prometheus.Collector) {
	err := prometheus.Register(c)

	switch err.(type) {
	case nil:
	case prometheus.AlreadyRegisteredError:
		m.logger.Debug().Interface("metric", c).Msg("metric already registered")
	default:
		m.logger.Error().Err(err).Interface("metric", c).Msg("metric could not be registered")
	}
}

func (m *Monitor) registerHistograms() {
	m.responseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "tcp_response_time_seconds",
			Help:        "tcp_response_time_seconds",
			ConstLabels: m.constLabels(),
		},
		[]string{"operation", "status"},
	)

	m.backendResponseTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "backend_response_time_seconds",
			Help:        "backend_response_time_seconds",
			ConstLabels: m.constLabels(),
		},
		[]string{"backend", "operation", "status"},
	)

	for _, histogram := range []*prometheus.HistogramVec{m.responseTime, m.backendResponseTime} {
		m.register(histogram)
	}
}

func (m *Monitor) registerGauges() {
	m.ldapMetric = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "ldap_metric",
			Help:        "ldap_metric",
			ConstLabels: m.constLabels(),
		},
		[]string{"type"},
	)

	m.register(m.ldapMetric)
}

func NewMonitor(logger *zerolog.Logger) *Monitor {
	m := new(Monitor)

	m.logger = logger

	m.registerHistograms()
	m.registerGauges()

	return m
}
