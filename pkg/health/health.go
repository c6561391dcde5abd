package health

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	deployerr "github.com/laconorg/deployer/pkg/errors"
	"github.com/laconorg/deployer/pkg/metrics"
	"github.com/laconorg/deployer/pkg/retry"
)

const (
	DefaultEndpoint       = "http://127.0.0.1"
	DefaultPath           = "/health/"
	DefaultRequestTimeout = 10 * time.Second

	// responses bigger than this are not health responses
	maxBody = 1 << 20
)

// DefaultPolicy waits for the service to settle, then polls for
// about a minute.
var DefaultPolicy = retry.Policy{
	InitialDelay: 10 * time.Second,
	Interval:     5 * time.Second,
	MaxAttempts:  12,
}

// Prober decides whether the service answering for a hostname is
// healthy. A nil error means healthy.
type Prober interface {
	Probe(ctx context.Context, hostname string) error
}

// HTTPProber polls the service's health endpoint over HTTP. Requests
// go to Endpoint, with the Host header set to the hostname being
// probed, so the reverse proxy in front of the service (or the service
// itself) routes them as it would real traffic.
type HTTPProber struct {
	Endpoint  string
	Path      string
	Client    *http.Client
	Policy    retry.Policy
	Clock     clockwork.Clock
	Readiness Readiness
	Logger    log.Logger
}

var _ Prober = &HTTPProber{}

func (p *HTTPProber) url() string {
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	path := p.Path
	if path == "" {
		path = DefaultPath
	}
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

func (p *HTTPProber) client() *http.Client {
	if p.Client == nil {
		return &http.Client{Timeout: DefaultRequestTimeout}
	}
	return p.Client
}

func (p *HTTPProber) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}

func (p *HTTPProber) logger() log.Logger {
	if p.Logger == nil {
		return log.NewNopLogger()
	}
	return p.Logger
}

// Probe polls according to the policy until the service reports
// ready, returning as soon as it does. A failed attempt, whatever the
// reason, is just logged; only running out of attempts (or ctx being
// done) makes the service unhealthy.
func (p *HTTPProber) Probe(ctx context.Context, hostname string) error {
	url := p.url()
	logger := log.With(p.logger(), "host", hostname, "url", url)

	attempts := 0
	err := p.Policy.Do(ctx, p.clock(), func(ctx context.Context, attempt int) error {
		attempts = attempt
		err := p.check(ctx, url, hostname)
		if err != nil {
			logger.Log("attempt", attempt, "healthy", false, "err", err)
			return err
		}
		logger.Log("attempt", attempt, "healthy", true)
		return nil
	})
	probeAttempts.With(metrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(float64(attempts))

	if err != nil {
		return &deployerr.Error{
			Type: deployerr.Health,
			Err:  errors.Wrapf(err, "%s did not become healthy", hostname),
			Help: fmt.Sprintf(`The service at %s did not report ready after %d attempt(s).

Check that it is running, and what %s reports.
`, hostname, attempts, url),
		}
	}
	return nil
}

func (p *HTTPProber) check(ctx context.Context, url, hostname string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Stop(errors.Wrap(err, "constructing health request"))
	}
	req.Host = hostname
	req.Header.Set("Accept", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return errors.Wrap(err, "reading health response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("health endpoint returned %s", resp.Status)
	}
	return p.Readiness.Evaluate(body)
}
