package monitoring

// NoopMonitor drops every metric. Used when no monitor is configured.
type NoopMonitor struct{}

func (NoopMonitor) SetResponseTimeMetric(map[string]string, float64) error        { return nil }
func (NoopMonitor) SetBackendResponseTimeMetric(map[string]string, float64) error { return nil }
func (NoopMonitor) SetLDAPMetric(map[string]string, float64) error                { return nil }

func NewNoopMonitor() MonitorInterface {
	return NoopMonitor{}
}
