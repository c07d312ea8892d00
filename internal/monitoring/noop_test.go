package monitoring

import "testing"

func TestNoopMonitorAcceptsEverything(t *testing.T) {
	m := NewNoopMonitor()

	if err := m.SetResponseTimeMetric(map[string]string{"operation": "bind"}, 1); err != nil {
		t.Error(err)
	}
	if err := m.SetBackendResponseTimeMetric(map[string]string{"backend": "iam"}, 1); err != nil {
		t.Error(err)
	}
	if err := m.SetLDAPMetric(map[string]string{"type": "conns"}, 1); err != nil {
		t.Error(err)
	}
}
