// Package coord implements the distributed coordination service:
// remote server registry, distribution strategies, response
// aggregation, health checking, and a TTL response cache.
package coord

import "time"

// RequestType classifies a coordination sub-request.
type RequestType string

const (
	RequestCoordination        RequestType = "coordination"
	RequestAnalytics           RequestType = "analytics"
	RequestOptimization        RequestType = "optimization"
	RequestMonitoring          RequestType = "monitoring"
	RequestLearning            RequestType = "learning"
	RequestTaskDistribution    RequestType = "task-distribution"
	RequestPerformanceAnalysis RequestType = "performance-analysis"
	RequestContextRetrieval    RequestType = "context-retrieval"
)

// Valid returns true if the type is a known value.
func (t RequestType) Valid() bool {
	switch t {
	case RequestCoordination, RequestAnalytics, RequestOptimization,
		RequestMonitoring, RequestLearning, RequestTaskDistribution,
		RequestPerformanceAnalysis, RequestContextRetrieval:
		return true
	default:
		return false
	}
}

// Priority orders coordination requests.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Request is one coordination sub-request sent to a remote server.
type Request struct {
	// ID identifies the request; retries reuse it so the response cache
	// can short-circuit duplicate remote work.
	ID string `json:"id"`
	// Type classifies the request.
	Type RequestType `json:"type"`
	// Payload is the request body.
	Payload map[string]any `json:"payload,omitempty"`
	// Timestamp is when the request was created.
	Timestamp time.Time `json:"timestamp"`
	// Priority orders the request on the remote side.
	Priority Priority `json:"priority"`
	// Timeout bounds the remote call.
	Timeout time.Duration `json:"timeout"`
}

// ResponseStatus is the remote server's verdict.
type ResponseStatus string

const (
	StatusSuccess        ResponseStatus = "success"
	StatusError          ResponseStatus = "error"
	StatusTimeout        ResponseStatus = "timeout"
	StatusPartialSuccess ResponseStatus = "partial-success"
)

// Succeeded reports whether the response carries usable results.
func (s ResponseStatus) Succeeded() bool {
	return s == StatusSuccess || s == StatusPartialSuccess
}

// ResponseMetadata carries per-response measurements.
type ResponseMetadata struct {
	// ProcessingTime is how long the server worked on the request.
	ProcessingTime time.Duration `json:"processing_time"`
	// ServerLoad is the server's reported load in [0,1].
	ServerLoad float64 `json:"server_load"`
	// QualityScore is the server's result quality in [0,1].
	QualityScore float64 `json:"quality_score"`
	// Confidence is the server's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// ResourcesUsed names the resources the server consumed.
	ResourcesUsed []string `json:"resources_used,omitempty"`
}

// Response is one remote server's answer to a Request.
type Response struct {
	// RequestID echoes the request's id.
	RequestID string `json:"request_id"`
	// ServerID identifies the answering server.
	ServerID string `json:"server_id"`
	// Status is the server's verdict.
	Status ResponseStatus `json:"status"`
	// Result is the response payload.
	Result map[string]any `json:"result,omitempty"`
	// Metadata carries the response measurements.
	Metadata ResponseMetadata `json:"metadata"`
	// Timestamp is when the server answered.
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo describes one registered coordination endpoint.
type ServerInfo struct {
	// ID identifies the server, unique within the registry.
	ID string `json:"id"`
	// Endpoint is the server's base URL.
	Endpoint string `json:"endpoint"`
	// Capabilities lists what the server can do; the specialized
	// strategy filters on these.
	Capabilities []string `json:"capabilities"`
	// Priority orders servers when a strategy needs a tiebreak.
	Priority int `json:"priority"`
	// Timeout bounds each call to this server.
	Timeout time.Duration `json:"timeout"`
	// Retries is how many times a failed call is retried.
	Retries int `json:"retries"`
}

// ServerState is a registered server's health state.
type ServerState string

const (
	// StateConnected means the server answers heartbeats; only
	// connected servers receive requests.
	StateConnected ServerState = "connected"
	// StateDegraded means three consecutive heartbeats failed; the
	// health loop keeps attempting reconnects.
	StateDegraded ServerState = "degraded"
)

// AggregatedResponse is the merged outcome of a distributed request.
type AggregatedResponse struct {
	// RequestID echoes the distributed request's id.
	RequestID string `json:"request_id"`
	// Quality is the mean quality score across successful responses.
	Quality float64 `json:"quality"`
	// Confidence is the mean confidence across successful responses.
	Confidence float64 `json:"confidence"`
	// Latency is the maximum processing time across all responses.
	Latency time.Duration `json:"latency"`
	// Result is the payload of the highest-weighted successful
	// response, where weight = quality x confidence.
	Result map[string]any `json:"result,omitempty"`
	// Weights maps server id to its contribution weight.
	Weights map[string]float64 `json:"weights,omitempty"`
	// Responses lists every response, successful or not, in server-id
	// order.
	Responses []Response `json:"responses"`
}
