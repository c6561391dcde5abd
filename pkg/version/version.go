// Package version derives the identifiers used to name a deployable
// revision. A full identifier is whatever the trigger supplied (usually
// a git commit SHA); the short identifier is its first ShortLength
// characters and is what appears in image tags, in the version record
// and in the audit log.
package version

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	ShortLength = 7

	// TagPrefix is put in front of the short identifier to form an
	// image tag, e.g., sha-abc1234.
	TagPrefix = "sha"
	tagSep    = "-"

	// Absent is what we print in place of a version when none was
	// recorded.
	Absent = "<absent>"
)

var (
	ErrInvalidVersion = errors.New("invalid version identifier")
	ErrBlankVersion   = errors.Wrap(ErrInvalidVersion, "blank version")

	validVersion = regexp.MustCompile(`^[0-9A-Za-z._-]+$`)
)

// Shorten returns the first ShortLength characters of the identifier
// given, or all of it if it is shorter than that.
func Shorten(full string) string {
	if len(full) <= ShortLength {
		return full
	}
	return full[:ShortLength]
}

// Normalize takes a version as it may have been stored -- either bare
// or with the tag prefix -- and returns the short identifier.
func Normalize(stored string) string {
	stored = strings.TrimSpace(stored)
	stored = strings.TrimPrefix(stored, TagPrefix+tagSep)
	return Shorten(stored)
}

// Tag renders the image tag for a short identifier.
func Tag(short string) string {
	return TagPrefix + tagSep + short
}

// Display renders a short identifier for logs and the audit trail,
// including the case where there isn't one.
func Display(short string) string {
	if short == "" {
		return Absent
	}
	return Tag(short)
}

// Validate checks that an identifier is usable in an image tag. It
// accepts both bare and prefixed forms.
func Validate(v string) error {
	v = strings.TrimPrefix(strings.TrimSpace(v), TagPrefix+tagSep)
	if v == "" {
		return ErrBlankVersion
	}
	if !validVersion.MatchString(v) {
		return errors.Wrapf(ErrInvalidVersion, "%q contains characters not allowed in an image tag", v)
	}
	return nil
}
