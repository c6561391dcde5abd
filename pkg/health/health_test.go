package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deployerr "github.com/laconorg/deployer/pkg/errors"
	"github.com/laconorg/deployer/pkg/retry"
)

func TestReadiness(t *testing.T) {
	r := Readiness{}
	for _, c := range []struct {
		body  string
		ready bool
	}{
		{`{"checks": {"db": {"ready": true}, "cache": {"ready": true}}}`, true},
		{`{"checks": {"db": {"ready": true}, "cache": {"ready": false}}}`, false},
		{`{"checks": {}}`, true},
		{`{"checks": {"db": "ok", "cache": "UP", "queue": 1, "s3": "healthy", "x": "true"}}`, true},
		{`{"checks": {"db": "down"}}`, false},
		{`{"checks": {"db": 0}}`, false},
		{`{"checks": {"db": null}}`, false},
		{`{"checks": {"db": {"healthy": "ok"}}}`, true},
		{`{"checks": {"db": {"status": "ready"}}}`, true},
		{`{"checks": {"db": {"ready": false, "status": "ok"}}}`, false},
		{`{"checks": {"db": {"latency": 3}}}`, false},
		{`{"status": "ok"}`, false},
		{`{"checks": ["db"]}`, false},
		{`{"checks": true}`, false},
		{`[]`, false},
		{`<html>ok</html>`, false},
		{``, false},
	} {
		err := r.Evaluate([]byte(c.body))
		if c.ready {
			assert.NoError(t, err, c.body)
		} else {
			assert.Error(t, err, c.body)
		}
	}
}

func TestReadinessNamesFailing(t *testing.T) {
	err := Readiness{}.Evaluate([]byte(`{"checks": {"redis": false, "db": {"ready": false}, "ok": true}}`))
	assert.Equal(t, NotReadyError{Checks: []string{"db", "redis"}}, err)
}

func TestReadinessCustomKeys(t *testing.T) {
	r := Readiness{ChecksKey: "status.deps", FlagKeys: []string{"up"}}
	assert.NoError(t, r.Evaluate([]byte(`{"status": {"deps": {"db": {"up": 1}}}}`)))
	assert.Error(t, r.Evaluate([]byte(`{"status": {"deps": {"db": {"ready": true}}}}`)))
	assert.Error(t, r.Evaluate([]byte(`{"checks": {}}`)))
}

// healthServer answers health requests with the status and body the
// responder gives for each attempt (numbered from 1), and records the
// Host header of each request.
type healthServer struct {
	*httptest.Server
	mu    sync.Mutex
	hosts []string
}

func newHealthServer(t *testing.T, responder func(attempt int) (int, string)) *healthServer {
	s := &healthServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hosts = append(s.hosts, r.Host)
		attempt := len(s.hosts)
		s.mu.Unlock()
		if r.URL.Path != DefaultPath {
			http.NotFound(w, r)
			return
		}
		status, body := responder(attempt)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *healthServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hosts...)
}

const (
	ready    = `{"checks": {"db": {"ready": true}, "cache": {"ready": true}}}`
	notReady = `{"checks": {"db": {"ready": false}, "cache": {"ready": true}}}`
)

func TestProbeOnce(t *testing.T) {
	srv := newHealthServer(t, func(int) (int, string) {
		return http.StatusOK, ready
	})
	p := &HTTPProber{
		Endpoint: srv.URL,
		Policy:   retry.Policy{MaxAttempts: 1},
	}
	assert.NoError(t, p.Probe(context.Background(), "app.example.com"))
	assert.Equal(t, []string{"app.example.com"}, srv.requests())
}

func TestProbeSucceedsOnThirdAttempt(t *testing.T) {
	srv := newHealthServer(t, func(attempt int) (int, string) {
		switch attempt {
		case 1:
			return http.StatusBadGateway, "bad gateway"
		case 2:
			return http.StatusOK, notReady
		}
		return http.StatusOK, ready
	})
	clock := clockwork.NewFakeClock()
	p := &HTTPProber{
		Endpoint: srv.URL,
		Policy:   DefaultPolicy,
		Clock:    clock,
	}

	done := make(chan error)
	go func() {
		done <- p.Probe(context.Background(), "app.example.com")
	}()
	clock.BlockUntil(1)
	clock.Advance(DefaultPolicy.InitialDelay)
	for i := 0; i < 2; i++ {
		clock.BlockUntil(1)
		clock.Advance(DefaultPolicy.Interval)
	}
	assert.NoError(t, <-done)
	// returns at once, with nine attempts to spare
	assert.Len(t, srv.requests(), 3)
}

func TestProbeExhausted(t *testing.T) {
	srv := newHealthServer(t, func(int) (int, string) {
		return http.StatusOK, notReady
	})
	clock := clockwork.NewFakeClock()
	policy := retry.Policy{InitialDelay: 10 * time.Second, Interval: 5 * time.Second, MaxAttempts: 4}
	p := &HTTPProber{
		Endpoint: srv.URL,
		Policy:   policy,
		Clock:    clock,
	}

	done := make(chan error)
	go func() {
		done <- p.Probe(context.Background(), "app.example.com")
	}()
	clock.BlockUntil(1)
	clock.Advance(policy.InitialDelay)
	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(policy.Interval)
	}
	err := <-done
	require.Error(t, err)
	assert.Len(t, srv.requests(), 4)

	derr, ok := err.(*deployerr.Error)
	require.True(t, ok)
	assert.Equal(t, deployerr.Health, derr.Type)
	assert.Contains(t, err.Error(), "gave up after 4 attempts")
	assert.Contains(t, err.Error(), "db")
}

func TestProbeUnreachable(t *testing.T) {
	srv := newHealthServer(t, func(int) (int, string) {
		return http.StatusOK, ready
	})
	url := srv.URL
	srv.Close()

	p := &HTTPProber{
		Endpoint: url,
		Policy:   retry.Policy{MaxAttempts: 2},
	}
	assert.Error(t, p.Probe(context.Background(), "app.example.com"))
}

func TestProbeCancelled(t *testing.T) {
	srv := newHealthServer(t, func(int) (int, string) {
		return http.StatusOK, ready
	})
	clock := clockwork.NewFakeClock()
	p := &HTTPProber{
		Endpoint: srv.URL,
		Policy:   DefaultPolicy,
		Clock:    clock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- p.Probe(ctx, "app.example.com")
	}()
	clock.BlockUntil(1)
	cancel()
	assert.Error(t, <-done)
	assert.Empty(t, srv.requests())
}

func TestURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1/health/", (&HTTPProber{}).url())
	assert.Equal(t, "http://proxy:8080/status", (&HTTPProber{Endpoint: "http://proxy:8080/", Path: "status"}).url())
}
