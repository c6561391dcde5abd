package compose

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/laconorg/deployer/pkg/metrics"
)

// Env vars that are allowed to be inherited from the OS
var allowedEnvVars = []string{
	// docker needs these to find itself and its CLI plugins (compose
	// is one)
	"PATH", "HOME", "XDG_RUNTIME_DIR",
	// these select and authenticate the daemon
	"DOCKER_HOST", "DOCKER_CONTEXT", "DOCKER_CONFIG", "DOCKER_CERT_PATH", "DOCKER_TLS_VERIFY",
	// for pulling through proxies
	"http_proxy", "https_proxy", "no_proxy", "HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
}

type threadSafeBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (b *threadSafeBuffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *threadSafeBuffer) Read(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Read(p)
}

func (b *threadSafeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

func (b *threadSafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type cmdConfig struct {
	env []string
	// if non-nil, stdout goes here rather than being mixed in with
	// stderr
	out io.Writer
}

// execCompose runs a compose subcommand. The first element of command
// is the executable; the rest are put before args (e.g., `docker
// compose`).
func execCompose(ctx context.Context, command []string, args []string, config cmdConfig) (err error) {
	if len(command) == 0 {
		return errors.New("no compose command configured")
	}
	started := time.Now()
	defer func() {
		commandDuration.With(
			metrics.LabelCommand, subcommand(args),
			metrics.LabelSuccess, fmt.Sprint(err == nil),
		).Observe(time.Since(started).Seconds())
	}()

	full := append(append([]string{}, command[1:]...), args...)
	c := exec.CommandContext(ctx, command[0], full...)
	c.Env = append(env(), config.env...)
	output := &threadSafeBuffer{}
	c.Stdout = output
	c.Stderr = output
	if config.out != nil {
		c.Stdout = config.out
	}

	err = c.Run()
	if err != nil {
		if len(output.Bytes()) > 0 {
			err = errors.New(output.String())
			msg := findErrorMessage(output)
			if msg != "" {
				err = fmt.Errorf("%s, full output:\n %s", msg, err.Error())
			}
		}
	}

	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(ctx.Err(), fmt.Sprintf("running compose command: %s %v", command[0], full))
	} else if ctx.Err() == context.Canceled {
		return errors.Wrap(ctx.Err(), fmt.Sprintf("context was unexpectedly cancelled when running compose command: %s %v", command[0], full))
	}
	return err
}

func env() []string {
	var env []string
	for _, k := range allowedEnvVars {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

// subcommand picks out the compose subcommand from args, for
// labelling metrics.
func subcommand(args []string) string {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f", "--file", "--env-file", "-p", "--project-name":
			i++
		default:
			if !strings.HasPrefix(args[i], "-") {
				return args[i]
			}
		}
	}
	return "unknown"
}

func findErrorMessage(output io.Reader) string {
	sc := bufio.NewScanner(output)
	for sc.Scan() {
		switch {
		case strings.HasPrefix(sc.Text(), "Error response from daemon: "):
			return sc.Text()
		case strings.HasPrefix(sc.Text(), "error "):
			return sc.Text()
		case strings.HasPrefix(sc.Text(), "Error: "):
			return strings.TrimPrefix(sc.Text(), "Error: ")
		}
	}
	return ""
}
