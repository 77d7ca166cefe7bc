package domain

// ============================================================
// Health API responses
// ============================================================

// HealthStatus is the per-upstream probe outcome.
type HealthStatus string

const (
	HealthOK      HealthStatus = "ok"
	HealthWarning HealthStatus = "warning"
	HealthError   HealthStatus = "error"
)

// GatewayStatus is the reduced status of the whole gateway.
type GatewayStatus string

const (
	GatewayOK       GatewayStatus = "ok"
	GatewayDegraded GatewayStatus = "degraded"
	GatewayDown     GatewayStatus = "down"
)

// ServiceHealth is produced fresh for every probe; never cached.
type ServiceHealth struct {
	Service   string       `json:"service"`
	Status    HealthStatus `json:"status"`
	LatencyMs *int64       `json:"latencyMs,omitempty"`
	Message   string       `json:"message,omitempty"`
	Hint      string       `json:"hint,omitempty"`
}

// GatewayHealth describes the gateway itself inside a HealthReport.
type GatewayHealth struct {
	Status    GatewayStatus `json:"status"`
	Version   string        `json:"version"`
	Timestamp string        `json:"timestamp"`
	ToolCount int           `json:"toolCount"`
}

// HealthSummary counts probes by outcome.
type HealthSummary struct {
	Healthy  int `json:"healthy"`
	Degraded int `json:"degraded"`
	Failed   int `json:"failed"`
}

// HealthReport is returned by GET /health/full.
type HealthReport struct {
	Gateway  GatewayHealth   `json:"gateway"`
	Services []ServiceHealth `json:"services"`
	Summary  HealthSummary   `json:"summary"`
}

// LivenessStatus is returned by GET /health.
type LivenessStatus struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Tools     int    `json:"tools"`
	Timestamp string `json:"timestamp"`
}

// Probe is one lightweight connectivity check against an upstream.
// Adapter names the upstream whose adapter issues the call; it is usually
// Service itself, but services without a cheap list endpoint borrow a sibling's.
type Probe struct {
	Service string
	Adapter string
	Request UpstreamRequest
}
