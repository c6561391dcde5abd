package cluster

import (
	"sort"

	"github.com/ryanuber/go-glob"
)

// ServiceSelector picks which of the services declared in a service
// definition take part in a deployment, by glob pattern. Note that
// Include and Exclude are treated differently -- see the method
// Selected.
type ServiceSelector struct {
	Include []string
	Exclude []string
}

// Selected decides for one service name:
//  - if the name matches any exclude pattern, leave it out
//  - otherwise, if there are no include patterns, take it
//  - otherwise, if it matches an include pattern, take it
//  = otherwise leave it out.
func (s ServiceSelector) Selected(name string) bool {
	for _, ex := range s.Exclude {
		if glob.Glob(ex, name) {
			return false
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, in := range s.Include {
		if glob.Glob(in, name) {
			return true
		}
	}
	return false
}

// All reports whether the selector takes every service, in which case
// there is no need to name them to the runtime.
func (s ServiceSelector) All() bool {
	return len(s.Include) == 0 && len(s.Exclude) == 0
}

// Select returns the selected names, sorted.
func (s ServiceSelector) Select(names []string) []string {
	var selected []string
	for _, n := range names {
		if s.Selected(n) {
			selected = append(selected, n)
		}
	}
	sort.Strings(selected)
	return selected
}
