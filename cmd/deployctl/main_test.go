package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laconorg/deployer/pkg/webhook"
)

const composeYAML = `services:
  web:
    image: ghcr.io/org/app:${IMAGE_TAG}
  redis:
    image: redis:7
`

// host is a compose project on disk, with a stand-in for docker that
// reports every service running whatever the version file says.
type host struct {
	dir         string
	composeFile string
	versionFile string
	auditLog    string
	docker      string
}

func newHost(t *testing.T, recorded string) *host {
	dir := t.TempDir()
	h := &host{
		dir:         dir,
		composeFile: filepath.Join(dir, "docker-compose.yml"),
		versionFile: filepath.Join(dir, "versions.env"),
		auditLog:    filepath.Join(dir, "deploy.log"),
		docker:      filepath.Join(dir, "docker"),
	}
	require.NoError(t, ioutil.WriteFile(h.composeFile, []byte(composeYAML), 0644))
	require.NoError(t, ioutil.WriteFile(h.versionFile, []byte(recorded), 0644))

	script := fmt.Sprintf(`#!/bin/sh
case "$*" in
  *" ps "*)
    tag=$(sed -n 's/^IMAGE_TAG=//p' %s)
    echo "{\"Name\":\"app-web-1\",\"Service\":\"web\",\"Image\":\"ghcr.io/org/app:$tag\",\"State\":\"running\"}"
    echo "{\"Name\":\"app-redis-1\",\"Service\":\"redis\",\"Image\":\"redis:7\",\"State\":\"running\"}"
    ;;
esac
`, h.versionFile)
	require.NoError(t, ioutil.WriteFile(h.docker, []byte(script), 0755))
	return h
}

func (h *host) recorded(t *testing.T) string {
	content, err := ioutil.ReadFile(h.versionFile)
	require.NoError(t, err)
	return string(content)
}

func (h *host) audit(t *testing.T) string {
	content, err := ioutil.ReadFile(h.auditLog)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(content)
}

// healthServer reports not ready for the first `failures` requests.
func healthServer(t *testing.T, failures int) *httptest.Server {
	var (
		mu       sync.Mutex
		requests int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"checks":{"db":{"ready":false}}}`)
			return
		}
		fmt.Fprint(w, `{"checks":{"db":{"ready":true}}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCommand(args ...string) (int, string, string) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	code := run(context.Background(), args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func (h *host) deployArgs(srv *httptest.Server, sha string, extra ...string) []string {
	args := []string{
		"deploy", sha, h.composeFile, h.versionFile, "app.example.com", h.auditLog,
		"--docker", h.docker,
		"--health-endpoint", srv.URL,
		"--health-initial-delay", "0s",
		"--health-interval", "0s",
		"--health-max-attempts", "2",
		"--lock-timeout", "0s",
	}
	return append(args, extra...)
}

func TestDefineEverything(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	defineConfigFlags(fs, viper.New(), func(err error) {
		t.Error(err)
	})
}

func TestDeploySuccess(t *testing.T) {
	h := newHost(t, "IMAGE_TAG=sha-1111111\n")
	srv := healthServer(t, 0)

	code, stdout, stderr := runCommand(h.deployArgs(srv, "abc12349999", "--triggered-by", "test")...)
	assert.Equal(t, 0, code, stderr)
	assert.Equal(t, "success\n", stdout)
	assert.Equal(t, "IMAGE_TAG=sha-abc1234\n", h.recorded(t))
	assert.Contains(t, h.audit(t), "[app.example.com] deployed sha-abc1234 (success) previous: sha-1111111\n")
	assert.Contains(t, stderr, "stage=success")
}

func TestDeployRolledBack(t *testing.T) {
	h := newHost(t, "IMAGE_TAG=sha-1111111\n")
	// both attempts at the new version fail, the first at the old one
	// succeeds
	srv := healthServer(t, 2)

	code, stdout, _ := runCommand(h.deployArgs(srv, "abc1234")...)
	assert.Equal(t, 1, code)
	assert.Equal(t, "failed-rolled-back\n", stdout)
	assert.Equal(t, "IMAGE_TAG=sha-1111111\n", h.recorded(t))
	assert.Contains(t, h.audit(t), "deployed sha-abc1234 (failed-rolled-back) previous: sha-1111111\n")
}

func TestDeployRollbackFailed(t *testing.T) {
	h := newHost(t, "IMAGE_TAG=sha-1111111\n")
	srv := healthServer(t, 100)

	code, stdout, stderr := runCommand(h.deployArgs(srv, "abc1234")...)
	assert.Equal(t, 2, code)
	assert.Equal(t, "failed-rollback-failed\n", stdout)
	assert.Contains(t, stderr, "needs attention")
	assert.Contains(t, stderr, "may record either version")
	assert.Contains(t, h.audit(t), "(failed-rollback-failed)")
}

func TestDeployNoRollback(t *testing.T) {
	h := newHost(t, "")
	srv := healthServer(t, 100)

	code, stdout, _ := runCommand(h.deployArgs(srv, "abc1234")...)
	assert.Equal(t, 1, code)
	assert.Equal(t, "failed-no-rollback\n", stdout)
	assert.Contains(t, h.audit(t), "deployed sha-abc1234 (failed-no-rollback) previous: <absent>\n")
}

func TestDeployConfigErrors(t *testing.T) {
	srv := healthServer(t, 0)

	for name, mutate := range map[string]func(h *host, args []string) []string{
		"missing compose file": func(h *host, args []string) []string {
			require.NoError(t, os.Remove(h.composeFile))
			return args
		},
		"missing version file": func(h *host, args []string) []string {
			require.NoError(t, os.Remove(h.versionFile))
			return args
		},
		"bad version": func(h *host, args []string) []string {
			args[1] = "abc 1234"
			return args
		},
		"too few arguments": func(h *host, args []string) []string {
			return append(args[:3:3], args[6:]...)
		},
		"unknown flag": func(h *host, args []string) []string {
			return append(args, "--no-such-flag")
		},
		"bad log format": func(h *host, args []string) []string {
			return append(args, "--log-format", "xml")
		},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHost(t, "IMAGE_TAG=sha-1111111\n")
			args := mutate(h, h.deployArgs(srv, "abc1234"))

			code, _, stderr := runCommand(args...)
			assert.Equal(t, 3, code, stderr)
			assert.Empty(t, h.audit(t))
			if _, err := os.Stat(h.versionFile); err == nil {
				assert.Equal(t, "IMAGE_TAG=sha-1111111\n", h.recorded(t))
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCommand("undeploy")
	assert.Equal(t, 3, code)
	assert.Contains(t, stderr, "unknown command")
	assert.Contains(t, stderr, "Nothing has been changed on the host.")
}

func TestConfigFile(t *testing.T) {
	h := newHost(t, "IMAGE_TAG=sha-1111111\n")
	srv := healthServer(t, 0)
	configFile := filepath.Join(h.dir, "deployctl.yaml")

	// no config version
	require.NoError(t, ioutil.WriteFile(configFile, []byte("logFormat: json\n"), 0644))
	code, _, _ := runCommand(append(h.deployArgs(srv, "abc1234"), "--config", configFile)...)
	assert.Equal(t, 3, code)
	assert.Empty(t, h.audit(t))

	require.NoError(t, ioutil.WriteFile(configFile, []byte(`deployConfigVersion: v1
logFormat: json
healthChecksKey: checks
composeServices: [web]
`), 0644))
	code, _, stderr := runCommand(append(h.deployArgs(srv, "abc1234"), "--config", configFile)...)
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, `"stage":"success"`)
}

func TestEnvironment(t *testing.T) {
	h := newHost(t, "IMAGE_TAG=sha-1111111\n")
	srv := healthServer(t, 0)

	os.Setenv("DEPLOYCTL_LOGFORMAT", "xml")
	defer os.Unsetenv("DEPLOYCTL_LOGFORMAT")
	code, _, _ := runCommand(h.deployArgs(srv, "abc1234")...)
	assert.Equal(t, 3, code)

	// explicit flags win
	code, _, stderr := runCommand(append(h.deployArgs(srv, "abc1234"), "--log-format", "logfmt")...)
	assert.Equal(t, 0, code, stderr)
}

func TestCurrent(t *testing.T) {
	h := newHost(t, "# managed by deployctl\nIMAGE_TAG=abc12349999\n")
	code, stdout, _ := runCommand("current", h.versionFile)
	assert.Equal(t, 0, code)
	assert.Equal(t, "sha-abc1234\n", stdout)

	// as written by a deployment
	h = newHost(t, "IMAGE_TAG=sha-abc1234\n")
	code, stdout, _ = runCommand("current", h.versionFile)
	assert.Equal(t, 0, code)
	assert.Equal(t, "sha-abc1234\n", stdout)

	h = newHost(t, "")
	code, stdout, _ = runCommand("current", h.versionFile)
	assert.Equal(t, 0, code)
	assert.Equal(t, "<absent>\n", stdout)

	code, stdout, _ = runCommand("current", filepath.Join(h.dir, "missing.env"))
	assert.Equal(t, 0, code)
	assert.Equal(t, "<absent>\n", stdout)

	require.NoError(t, ioutil.WriteFile(h.versionFile, []byte("IMAGE_TAG=$(reboot)\n"), 0644))
	code, _, _ = runCommand("current", h.versionFile)
	assert.Equal(t, 3, code)

	code, _, _ = runCommand("current")
	assert.Equal(t, 3, code)
}

func TestProbe(t *testing.T) {
	args := func(srv *httptest.Server) []string {
		return []string{"probe", "app.example.com",
			"--health-endpoint", srv.URL,
			"--health-initial-delay", "0s",
			"--health-interval", "0s",
			"--health-max-attempts", "2",
		}
	}
	code, stdout, _ := runCommand(args(healthServer(t, 1))...)
	assert.Equal(t, 0, code)
	assert.Equal(t, "healthy\n", stdout)

	code, _, _ = runCommand(args(healthServer(t, 2))...)
	assert.Equal(t, 1, code)
}

func TestStatus(t *testing.T) {
	h := newHost(t, "IMAGE_TAG=sha-abc1234\n")
	code, stdout, stderr := runCommand("status", h.composeFile, h.versionFile, "--docker", h.docker)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "sha-abc1234")
	assert.Contains(t, stdout, "ghcr.io/org/app:sha-abc1234")
	assert.Contains(t, stdout, "app-redis-1")
}

func TestTrigger(t *testing.T) {
	secret := "s3cret"
	var received webhook.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := verifyRequest([]byte(secret), r)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, err)
			return
		}
		received = decodePayload(t, body)
		fmt.Fprint(w, "deploying")
	}))
	defer srv.Close()

	code, stdout, stderr := runCommand("trigger", srv.URL, secret, "deploy-app", "abc1234", "--workflow-run-id", "42")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "deploying\n", stdout)
	assert.Equal(t, "deploy-app", received.HookID)
	assert.Equal(t, "abc1234", received.SHA)
	assert.Equal(t, "42", received.WorkflowRunID)
	assert.Equal(t, webhook.DefaultRef, received.Ref)

	code, _, stderr = runCommand("trigger", srv.URL, "wrong", "deploy-app", "abc1234")
	assert.Equal(t, 1, code)
	assert.True(t, strings.Contains(stderr, "Unauthorized"), stderr)

	code, _, _ = runCommand("trigger", srv.URL, secret, "deploy-app", "not a sha")
	assert.Equal(t, 3, code)
}

func decodePayload(t *testing.T, body []byte) webhook.Payload {
	var p webhook.Payload
	require.NoError(t, json.Unmarshal(body, &p))
	return p
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCommand("version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "unversioned\n", stdout)

	code, _, _ = runCommand("version", "extra")
	assert.Equal(t, 3, code)
}

func TestMetricsTextfile(t *testing.T) {
	h := newHost(t, "IMAGE_TAG=sha-1111111\n")
	srv := healthServer(t, 0)
	textfile := filepath.Join(h.dir, "deployctl.prom")

	code, _, stderr := runCommand(append(h.deployArgs(srv, "abc1234"), "--metrics-textfile", textfile)...)
	require.Equal(t, 0, code, stderr)
	content, err := ioutil.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "deployer_deploy_duration_seconds")
}

// verifyRequest reads the body of a trigger request and checks its
// signature, as the receiving end does.
func verifyRequest(secret []byte, r *http.Request) ([]byte, error) {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return body, webhook.Verify(secret, body, r.Header.Get(webhook.SignatureHeader))
}
