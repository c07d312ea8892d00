package monitoring

import (
	"time"

	"github.com/rs/zerolog"
)

type LDAPMonitorWatcher struct {
	syncTicker *time.Ticker
	done       chan struct{}

	ldap LDAPServerInterface

	monitor MonitorInterface
	logger  *zerolog.Logger
}

func (m *LDAPMonitorWatcher) sync() {
	for {
		select {
		case tick := <-m.syncTicker.C:
			m.logger.Debug().Time("value", tick).Msg("Tick")
			m.storeMetrics()
		case <-m.done:
			return
		}
	}
}

func (m *LDAPMonitorWatcher) storeMetrics() {
	stats := m.ldap.GetStats()

	metrics := []struct {
		name  string
		value int
	}{
		{"conns", stats.Conns},
		{"binds", stats.Binds},
		{"unbinds", stats.Unbinds},
		{"searches", stats.Searches},
	}

	for _, metric := range metrics {
		if err := m.monitor.SetLDAPMetric(map[string]string{"type": metric.name}, float64(metric.value)); err != nil {
			m.logger.Error().Err(err).Str("type", metric.name).Msg("failed to set metric")
		}
	}
}

// Stop ends the sync loop
func (m *LDAPMonitorWatcher) Stop() {
	m.syncTicker.Stop()
	close(m.done)
}

func NewLDAPMonitorWatcher(ldap LDAPServerInterface, monitor MonitorInterface, logger *zerolog.Logger) *LDAPMonitorWatcher {
	return newLDAPMonitorWatcher(ldap, monitor, logger, 15*time.Second)
}

func newLDAPMonitorWatcher(ldap LDAPServerInterface, monitor MonitorInterface, logger *zerolog.Logger, every time.Duration) *LDAPMonitorWatcher {
	m := new(LDAPMonitorWatcher)

	m.syncTicker = time.NewTicker(every)
	m.done = make(chan struct{})
	m.ldap = ldap
	m.monitor = monitor
	m.logger = logger

	m.ldap.SetStats(true)

	go m.sync()

	return m
}
