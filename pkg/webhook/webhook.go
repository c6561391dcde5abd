// Package webhook builds, signs and sends the request that asks a host
// to deploy a version, and checks the signature on the receiving end.
// Signatures are HMAC-SHA256 over the exact request body, in the form
// GitHub uses for its webhooks.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/laconorg/deployer/pkg/version"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="

	DefaultRef         = "refs/heads/main"
	DefaultRepository  = "laconorg/nomnom-lacon-v"
	DefaultSender      = "github-actions"
	DefaultTriggeredBy = "github-actions"
	DefaultTimeout     = 30 * time.Second

	// how much of a failed response to report
	maxResponse = 4096
)

var (
	ErrNoSignature      = errors.New("request has no signature")
	ErrSignatureInvalid = errors.New("signature does not match")
)

// Payload is the body of a trigger request.
type Payload struct {
	HookID        string `json:"hook_id"`
	SHA           string `json:"sha"`
	Ref           string `json:"ref"`
	Repository    string `json:"repository"`
	Sender        string `json:"sender"`
	TriggeredBy   string `json:"triggered_by"`
	WorkflowRunID string `json:"workflow_run_id"`
}

// NewPayload gives a payload for the hook and commit with everything
// else defaulted.
func NewPayload(hookID, sha string) Payload {
	return Payload{
		HookID:      hookID,
		SHA:         sha,
		Ref:         DefaultRef,
		Repository:  DefaultRepository,
		Sender:      DefaultSender,
		TriggeredBy: DefaultTriggeredBy,
	}
}

func (p Payload) Validate() error {
	if p.HookID == "" {
		return errors.New("hook ID is required")
	}
	return errors.Wrap(version.Validate(p.SHA), "sha")
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value against body.
func Verify(secret, body []byte, signature string) error {
	if signature == "" {
		return ErrNoSignature
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return errors.Wrapf(ErrSignatureInvalid, "expected %q prefix", signaturePrefix)
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return errors.Wrap(ErrSignatureInvalid, "not hex")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrSignatureInvalid
	}
	return nil
}

// StatusError is returned when the receiver answers with anything but
// 200 OK.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "webhook returned HTTP " + http.StatusText(e.StatusCode) + ": " + e.Body
}

// Request builds the signed request for a payload.
func Request(ctx context.Context, url string, secret []byte, p Payload) (*http.Request, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "encoding payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "constructing webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(secret, body))
	return req, nil
}

// Send posts the signed payload to url, and returns the response body.
// Any status but 200 is an error.
func Send(ctx context.Context, client *http.Client, url string, secret []byte, p Payload) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	req, err := Request(ctx, url, secret, p)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "sending webhook")
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", errors.Wrap(err, "reading webhook response")
	}
	if resp.StatusCode != http.StatusOK {
		return string(respBody), &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return string(respBody), nil
}
