// Package metrics records bridge and host counters without tying callers to a
// particular backend.
package metrics

import "time"

// Counter names.
const (
	RequestsTotal      = "requests_total"
	RequestTimeouts    = "request_timeouts_total"
	RequestFailures    = "request_failures_total"
	LateResponses      = "late_responses_total"
	HostMethodsHandled = "host_methods_total"
	HostReplays        = "host_replays_total"
)

// Latency names.
const (
	RequestLatency    = "request"
	HostMethodLatency = "host_method"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
