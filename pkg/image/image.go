package image

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrInvalidImageID   = errors.New("invalid image ID")
	ErrBlankImageID     = errors.Wrap(ErrInvalidImageID, "blank image name")
	ErrMalformedImageID = errors.Wrap(ErrInvalidImageID, `expected image name as either <image>:<tag> or just <image>`)
	ErrNoTag            = errors.Wrap(ErrInvalidImageID, "image has no tag")
)

// Name represents an untagged image a.k.a. an image repo. These
// sometimes include a domain, e.g., ghcr.io, and always include a path
// with at least one element. By convention, images at DockerHub may
// have the domain omitted; and, if they only have single path element,
// the prefix `library` is implied.
//
// Examples (stringified):
//   * postgres
//   * library/postgres
//   * ghcr.io/laconorg/app
//   * localhost:5000/arbitrary/path/to/repo
type Name struct {
	Domain, Image string
}

func (i Name) String() string {
	if i.Image == "" {
		return ""
	}
	var host string
	if i.Domain != "" {
		host = i.Domain + "/"
	}
	return fmt.Sprintf("%s%s", host, i.Image)
}

// Ref represents a tagged image, possibly pinned to a digest as well.
// The tag is allowed to be empty.
//
// Examples (stringified):
//  * postgres:16
//  * ghcr.io/laconorg/app:sha-abc1234
//  * ghcr.io/laconorg/app:sha-abc1234@sha256:4f5e...
type Ref struct {
	Name
	Tag    string
	Digest string
}

func (i Ref) String() string {
	var tag, digest string
	if i.Tag != "" {
		tag = ":" + i.Tag
	}
	if i.Digest != "" {
		digest = "@" + i.Digest
	}
	return i.Name.String() + tag + digest
}

// RequireTag returns the tag, or ErrNoTag if there isn't one.
func (i Ref) RequireTag() (string, error) {
	if i.Tag == "" {
		return "", errors.Wrapf(ErrNoTag, "image %q", i.String())
	}
	return i.Tag, nil
}

// ParseRef parses a string representation of an image ref. The
// grammar is shown here:
// https://github.com/docker/distribution/blob/master/reference/reference.go
// (but we do not care about all the productions.)
func ParseRef(s string) (Ref, error) {
	var id Ref
	if s == "" {
		return id, errors.Wrapf(ErrBlankImageID, "parsing %q", s)
	}
	if at := strings.LastIndex(s, "@"); at >= 0 {
		id.Digest = s[at+1:]
		s = s[:at]
		if id.Digest == "" || s == "" {
			return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
		}
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
	}

	elements := strings.Split(s, "/")
	switch len(elements) {
	case 1: // no slashes, e.g., "redis:7"; treat as library image
		id.Image = s
	case 2: // may have a domain e.g., "localhost/foo", or not e.g., "laconorg/app"
		if domainRegexp.MatchString(elements[0]) {
			id.Domain = elements[0]
			id.Image = elements[1]
		} else {
			id.Image = s
		}
	default: // cannot be a library image, so the first element is assumed to be a domain
		id.Domain = elements[0]
		id.Image = strings.Join(elements[1:], "/")
	}

	imageParts := strings.Split(id.Image, ":")
	switch len(imageParts) {
	case 1:
	case 2:
		if imageParts[0] == "" || imageParts[1] == "" {
			return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
		}
		id.Image = imageParts[0]
		id.Tag = imageParts[1]
	default:
		return id, errors.Wrapf(ErrMalformedImageID, "parsing %q", s)
	}

	return id, nil
}

// TagOf parses the image ref given and returns its tag.
func TagOf(s string) (string, error) {
	ref, err := ParseRef(s)
	if err != nil {
		return "", err
	}
	return ref.RequireTag()
}

var (
	domainComponent = `([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9])`
	domain          = fmt.Sprintf(`^(localhost|(%s([.]%s)+))(:[0-9]+)?$`, domainComponent, domainComponent)
	domainRegexp    = regexp.MustCompile(domain)
)
