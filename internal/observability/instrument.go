package observability

import (
	"time"
)

// GatewayInstrument feeds gateway lock and commit events into Metrics. It
// satisfies database.Instrument.
type GatewayInstrument struct {
	metrics *Metrics
}

func NewGatewayInstrument(metrics *Metrics) *GatewayInstrument {
	return &GatewayInstrument{metrics: metrics}
}

func (i *GatewayInstrument) LockAcquired(_ int64, waited time.Duration) {
	i.metrics.LockWait.Observe(float64(waited.Microseconds()) / 1000)
}

func (i *GatewayInstrument) CursorClosed(int64, uint64) {
	i.metrics.CursorsClosed.Inc()
}

func (i *GatewayInstrument) Committing(int64, int) {
	i.metrics.WriteScopes.WithLabelValues("commit").Inc()
}

func (i *GatewayInstrument) RolledBack(int64) {
	i.metrics.WriteScopes.WithLabelValues("rollback").Inc()
}
