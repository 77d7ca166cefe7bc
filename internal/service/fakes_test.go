package service_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
)

// --- Fakes ---

type fakeAdapter struct {
	name      string
	identity  string
	configErr error

	resp      *domain.UpstreamResponse
	err       error
	panicWith any
	delay     time.Duration

	mu      sync.Mutex
	calls   int
	lastReq *domain.UpstreamRequest
}

func newFakeAdapter(name string, status int, body string) *fakeAdapter {
	return &fakeAdapter{
		name: name,
		resp: &domain.UpstreamResponse{Status: status, Header: http.Header{}, Body: []byte(body)},
	}
}

func (f *fakeAdapter) Name() string      { return f.name }
func (f *fakeAdapter) Identity() string  { return f.identity }
func (f *fakeAdapter) Configured() error { return f.configErr }

func (f *fakeAdapter) Call(ctx context.Context, req *domain.UpstreamRequest) (*domain.UpstreamResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()

	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) LastRequest() *domain.UpstreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeCredentials struct {
	token string
	err   error
	calls atomic.Int32
}

func (f *fakeCredentials) Get(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.token, f.err
}

type fakeTokenSource struct {
	prefix    string
	expiresIn time.Duration
	err       error
	block     chan struct{}
	calls     atomic.Int32
}

func (f *fakeTokenSource) Token(_ context.Context) (*domain.IssuedToken, error) {
	n := f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	exp := f.expiresIn
	if exp == 0 {
		exp = time.Hour
	}
	return &domain.IssuedToken{AccessToken: f.prefix + "-" + string(rune('0'+n)), ExpiresIn: exp}, nil
}
