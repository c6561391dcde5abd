package health

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/Jeffail/gabs"
	"github.com/pkg/errors"
)

const DefaultChecksKey = "checks"

// DefaultFlagKeys are looked for, in order, in a check reported as an
// object.
var DefaultFlagKeys = []string{"ready", "healthy", "status"}

// NotReadyError names the checks that did not report ready.
type NotReadyError struct {
	Checks []string
}

func (e NotReadyError) Error() string {
	return "not ready: " + strings.Join(e.Checks, ", ")
}

// Readiness decides from a health response body whether the service is
// ready. The body must be a JSON object with a checks object under
// ChecksKey (which may be a dotted path, e.g., `status.checks`); the
// service is ready when every check in it is. A check is either a flag
// itself, or an object with a flag under one of FlagKeys:
//
//     {"checks": {"db": {"ready": true}, "cache": "ok"}}
//
// An empty checks object means there is nothing to wait for.
type Readiness struct {
	ChecksKey string
	FlagKeys  []string
}

func (r Readiness) checksKey() string {
	if r.ChecksKey == "" {
		return DefaultChecksKey
	}
	return r.ChecksKey
}

func (r Readiness) flagKeys() []string {
	if len(r.FlagKeys) == 0 {
		return DefaultFlagKeys
	}
	return r.FlagKeys
}

// Evaluate returns nil if the body reports ready, and otherwise an
// error saying why not.
func (r Readiness) Evaluate(body []byte) error {
	doc, err := gabs.ParseJSON(body)
	if err != nil {
		return errors.Wrap(err, "parsing health response")
	}
	checks := doc.Path(r.checksKey())
	if checks.Data() == nil {
		return errors.Errorf("no %q in health response", r.checksKey())
	}
	children, err := checks.ChildrenMap()
	if err != nil {
		return errors.Errorf("%q in health response is not an object", r.checksKey())
	}

	var failing []string
	for name, check := range children {
		if !r.ready(check) {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		return NotReadyError{Checks: failing}
	}
	return nil
}

func (r Readiness) ready(check *gabs.Container) bool {
	if obj, ok := check.Data().(map[string]interface{}); ok {
		for _, k := range r.flagKeys() {
			if flag, ok := obj[k]; ok {
				return truthy(flag)
			}
		}
		return false
	}
	return truthy(check.Data())
}

func truthy(v interface{}) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "ok", "ready", "up", "healthy":
			return true
		}
	case float64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	}
	return false
}
