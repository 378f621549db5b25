// Package capability answers whether a method may be invoked against the
// contract version a host reports. It is pure and never touches the transport.
package capability

import (
	"fmt"
	"slices"
)

type Registry struct {
	releases []Release
}

// NewRegistry copies and sorts the given releases ascending by version.
// Every version must parse.
func NewRegistry(releases []Release) (*Registry, error) {
	sorted := make([]Release, len(releases))
	copy(sorted, releases)
	for _, r := range sorted {
		if _, err := ParseVersion(string(r.Version)); err != nil {
			return nil, fmt.Errorf("release table: %w", err)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Release) int { return a.Version.Compare(b.Version) })
	return &Registry{releases: sorted}, nil
}

var defaultRegistry = mustRegistry(Releases)

func mustRegistry(releases []Release) *Registry {
	r, err := NewRegistry(releases)
	if err != nil {
		panic(err)
	}
	return r
}

// Default is the registry built from the static Releases manifest.
func Default() *Registry { return defaultRegistry }

// MinVersion returns the first release mentioning method, either bare or as
// a method/variant pair.
func (r *Registry) MinVersion(method string) (Version, bool) {
	for _, rel := range r.releases {
		for _, e := range rel.Entries {
			if e.Method == method {
				return rel.Version, true
			}
		}
	}
	return "", false
}

// VariantMinVersion returns the first release introducing the given payload
// variant of method.
func (r *Registry) VariantMinVersion(method, variant string) (Version, bool) {
	for _, rel := range r.releases {
		for _, e := range rel.Entries {
			if e.Method == method && e.Variant == variant {
				return rel.Version, true
			}
		}
	}
	return "", false
}

// IsMethodSupported fails open when version is empty: hosts in local
// development often report nothing. A malformed version or an unknown method
// is unsupported.
func (r *Registry) IsMethodSupported(method string, version string) bool {
	if version == "" {
		return true
	}
	v, err := ParseVersion(version)
	if err != nil {
		return false
	}
	minV, ok := r.MinVersion(method)
	if !ok {
		return false
	}
	return v.Compare(minV) >= 0
}

func (r *Registry) IsVariantSupported(method, variant, version string) bool {
	if version == "" {
		return true
	}
	v, err := ParseVersion(version)
	if err != nil {
		return false
	}
	minV, ok := r.VariantMinVersion(method, variant)
	if !ok {
		return false
	}
	return v.Compare(minV) >= 0
}

// Methods lists every method named in the table, in release order.
func (r *Registry) Methods() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, rel := range r.releases {
		for _, e := range rel.Entries {
			if _, ok := seen[e.Method]; ok {
				continue
			}
			seen[e.Method] = struct{}{}
			out = append(out, e.Method)
		}
	}
	return out
}

func (r *Registry) Versions() []Version {
	out := make([]Version, 0, len(r.releases))
	for _, rel := range r.releases {
		out = append(out, rel.Version)
	}
	return out
}

func MinVersion(method string) (Version, bool) { return defaultRegistry.MinVersion(method) }

func IsMethodSupported(method, version string) bool {
	return defaultRegistry.IsMethodSupported(method, version)
}
