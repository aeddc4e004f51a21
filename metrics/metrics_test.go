package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	dto "github.com/prometheus/client_model/go"
)

func TestCollectorTracksSessionLifecycle(t *testing.T) {
	c := New()

	c.SessionStarted(RoleReader)
	c.SessionStarted(RoleWriter)
	c.SessionEnded(RoleReader, true)
	c.SessionEnded(RoleWriter, false)
	c.Timeout()
	c.Timeout()
	c.Retransmit()

	snap := c.Snapshot()
	assert.Equal(t, 2, snap.SessionsStarted)
	assert.Equal(t, 1, snap.SessionsCompleted)
	assert.Equal(t, 1, snap.SessionsFailed)
	assert.Equal(t, 2, snap.Timeouts)
	assert.Equal(t, 1, snap.Retransmits)
}

func TestCollectorActiveGaugeTracksInFlightSessions(t *testing.T) {
	c := New()
	c.SessionStarted(RoleReader)
	c.SessionStarted(RoleReader)
	assert.Equal(t, float64(2), gaugeValue(t, c))

	c.SessionEnded(RoleReader, true)
	assert.Equal(t, float64(1), gaugeValue(t, c))
}

func gaugeValue(t *testing.T, c *Collector) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.active.Write(&m); err != nil {
		t.Fatalf("write gauge: %s", err)
	}
	return m.GetGauge().GetValue()
}
