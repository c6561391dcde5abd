package compose

import (
	"io/ioutil"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// File is the part of a compose file we need: the services and the
// image each one runs.
type File struct {
	Path     string
	Services map[string]Service
}

type Service struct {
	Image string `yaml:"image"`
}

type minimalCompose struct {
	Services map[string]Service `yaml:"services"`
}

// LoadFile reads and parses the compose file at path. A file that
// does not declare any services is an error.
func LoadFile(path string) (*File, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading compose file")
	}
	return ParseFile(path, content)
}

func ParseFile(path string, content []byte) (*File, error) {
	var def minimalCompose
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, errors.Wrapf(err, "parsing compose file %s", path)
	}
	if len(def.Services) == 0 {
		return nil, errors.Errorf("compose file %s declares no services", path)
	}
	return &File{Path: path, Services: def.Services}, nil
}

// ServiceNames returns the names of all declared services, sorted.
func (f *File) ServiceNames() []string {
	names := make([]string, 0, len(f.Services))
	for name := range f.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versioned reports whether the service's image is interpolated from
// the variable key, e.g., `image: ghcr.io/org/app:${IMAGE_TAG}`.
func (f *File) Versioned(service, key string) bool {
	svc, ok := f.Services[service]
	if !ok {
		return false
	}
	return interpolates(svc.Image, key)
}

func interpolates(s, key string) bool {
	q := regexp.QuoteMeta(key)
	re := regexp.MustCompile(`\$(\{` + q + `[}:?-]|` + q + `\b)`)
	return re.MatchString(s)
}
