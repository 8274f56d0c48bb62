package client

import (
	"time"

	"github.com/CefBoud/monstream/protocol"
	"github.com/hashicorp/go-metrics"
)

var (
	framesInKey  = []string{"monstream", "client", "frames", "in"}
	framesOutKey = []string{"monstream", "client", "frames", "out"}
	timeoutsKey  = []string{"monstream", "client", "requests", "timeout"}
	errorsKey    = []string{"monstream", "client", "errors"}
	pendingKey   = []string{"monstream", "client", "requests", "pending"}
)

func metricsFrameIn()  { metrics.IncrCounter(framesInKey, 1) }
func metricsFrameOut() { metrics.IncrCounter(framesOutKey, 1) }
func metricsTimeout()  { metrics.IncrCounter(timeoutsKey, 1) }
func metricsError()    { metrics.IncrCounter(errorsKey, 1) }

func metricsPending(n int) {
	metrics.SetGauge(pendingKey, float32(n))
}

// metricsRequest records how long a correlated request took, by command
func metricsRequest(key uint16, start time.Time) {
	metrics.MeasureSince([]string{"monstream", "client", "request", protocol.KeyName(key)}, start)
}
