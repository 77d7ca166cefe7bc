package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"
	"github.com/boddenberg/agency-tool-gateway/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HealthConfig holds the static facts reported in HealthReport.Gateway.
type HealthConfig struct {
	Version   string
	ToolCount int
	// ProbeTimeout bounds each probe. Zero means a slow upstream delays the whole report.
	ProbeTimeout time.Duration
}

// HealthAggregator probes every upstream and reduces the results to one status.
// It keeps no state between runs.
type HealthAggregator struct {
	probes      []domain.Probe
	index       map[string]int
	adapters    map[string]port.ServiceAdapter
	credentials port.CredentialProvider
	classifier  *ErrorClassifier
	cfg         HealthConfig
	now         func() time.Time
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewHealthAggregator fails when a probe names an adapter that does not exist.
func NewHealthAggregator(
	probes []domain.Probe,
	adapters map[string]port.ServiceAdapter,
	credentials port.CredentialProvider,
	classifier *ErrorClassifier,
	cfg HealthConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*HealthAggregator, error) {
	h := &HealthAggregator{
		probes:      make([]domain.Probe, 0, len(probes)),
		index:       make(map[string]int, len(probes)),
		adapters:    adapters,
		credentials: credentials,
		classifier:  classifier,
		cfg:         cfg,
		now:         time.Now,
		metrics:     metrics,
		logger:      logger.Named("health"),
	}
	for _, p := range probes {
		if _, ok := adapters[p.Adapter]; !ok {
			return nil, fmt.Errorf("probe %q: no adapter %q", p.Service, p.Adapter)
		}
		if _, dup := h.index[p.Service]; dup {
			return nil, fmt.Errorf("duplicate probe %q", p.Service)
		}
		h.index[p.Service] = len(h.probes)
		h.probes = append(h.probes, p)
	}
	return h, nil
}

// Services lists the probed services in report order.
func (h *HealthAggregator) Services() []string {
	out := make([]string, len(h.probes))
	for i, p := range h.probes {
		out[i] = p.Service
	}
	return out
}

// Has reports whether service has a probe.
func (h *HealthAggregator) Has(service string) bool {
	_, ok := h.index[service]
	return ok
}

// RunFull probes every upstream concurrently and waits for all of them.
// Probes are detached from ctx cancellation, like tool calls.
func (h *HealthAggregator) RunFull(ctx context.Context) domain.HealthReport {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "HealthAggregator.RunFull")
	defer span.End()

	results := make([]domain.ServiceHealth, len(h.probes))
	var g errgroup.Group
	for i, p := range h.probes {
		g.Go(func() error {
			results[i] = h.probe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	status, summary := Reduce(results)
	span.SetAttributes(
		attribute.String("health.status", string(status)),
		attribute.Int("health.failed", summary.Failed),
	)
	if status != domain.GatewayOK {
		h.logger.Warn("gateway health degraded",
			zap.String("status", string(status)),
			zap.Int("healthy", summary.Healthy),
			zap.Int("degraded", summary.Degraded),
			zap.Int("failed", summary.Failed),
		)
	}

	return domain.HealthReport{
		Gateway: domain.GatewayHealth{
			Status:    status,
			Version:   h.cfg.Version,
			Timestamp: domain.FormatTimestamp(h.now()),
			ToolCount: h.cfg.ToolCount,
		},
		Services: results,
		Summary:  summary,
	}
}

// RunOne probes a single service.
func (h *HealthAggregator) RunOne(ctx context.Context, service string) domain.ServiceHealth {
	i, ok := h.index[service]
	if !ok {
		return domain.ServiceHealth{
			Service: service,
			Status:  domain.HealthError,
			Message: "Unknown service: " + service,
		}
	}
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "HealthAggregator.RunOne")
	defer span.End()
	return h.probe(ctx, h.probes[i])
}

// Reduce computes the gateway status: any failure with at least one healthy
// upstream is degraded, failures with none healthy is down. Warnings never
// change the status.
func Reduce(services []domain.ServiceHealth) (domain.GatewayStatus, domain.HealthSummary) {
	var s domain.HealthSummary
	for _, svc := range services {
		switch svc.Status {
		case domain.HealthOK:
			s.Healthy++
		case domain.HealthWarning:
			s.Degraded++
		default:
			s.Failed++
		}
	}
	switch {
	case s.Failed == 0:
		return domain.GatewayOK, s
	case s.Healthy > 0:
		return domain.GatewayDegraded, s
	default:
		return domain.GatewayDown, s
	}
}

func (h *HealthAggregator) probe(ctx context.Context, p domain.Probe) (res domain.ServiceHealth) {
	res.Service = p.Service
	adapter := h.adapters[p.Adapter]

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Status = domain.HealthError
			res.Message = fmt.Sprintf("probe panic: %v", r)
		}
		h.metrics.RecordProbe(p.Service, string(res.Status), time.Since(start))
	}()

	if err := adapter.Configured(); err != nil {
		serr := h.classifier.FromError(p.Service, err)
		res.Status = domain.HealthWarning
		res.Message = "not configured"
		res.Hint = serr.Hint
		return res
	}

	if h.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.ProbeTimeout)
		defer cancel()
	}

	req := p.Request
	if identity := adapter.Identity(); identity != "" {
		token, err := h.credentials.Get(ctx, identity)
		if err != nil {
			return h.failed(res, p.Service, err, start)
		}
		req.Token = token
	}

	resp, err := adapter.Call(ctx, &req)
	if err != nil {
		return h.failed(res, p.Service, err, start)
	}
	latency := time.Since(start).Milliseconds()
	res.LatencyMs = &latency

	if serr := h.classifier.Classify(p.Service, resp); serr != nil {
		res.Status = domain.HealthError
		if serr.Code == domain.CodeRateLimited {
			res.Status = domain.HealthWarning
		}
		res.Message = serr.Message
		res.Hint = serr.Hint
		return res
	}
	if resp.Status >= http.StatusBadRequest {
		res.Status = domain.HealthError
		res.Message = fmt.Sprintf("%s returned HTTP %d", p.Service, resp.Status)
		return res
	}
	res.Status = domain.HealthOK
	return res
}

func (h *HealthAggregator) failed(res domain.ServiceHealth, service string, err error, start time.Time) domain.ServiceHealth {
	var notConfig *domain.ErrNotConfigured
	serr := h.classifier.FromError(service, err)
	res.Message = serr.Message
	res.Hint = serr.Hint
	switch {
	case errors.As(err, &notConfig):
		res.Status = domain.HealthWarning
		res.Message = "not configured"
	case h.cfg.ProbeTimeout > 0 && errors.Is(err, context.DeadlineExceeded):
		res.Status = domain.HealthError
		res.Message = fmt.Sprintf("no response within %s", h.cfg.ProbeTimeout)
	default:
		res.Status = domain.HealthError
	}
	latency := time.Since(start).Milliseconds()
	res.LatencyMs = &latency
	return res
}
