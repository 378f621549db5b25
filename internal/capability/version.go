package capability

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a contract version in strict "major.minor.patch" form.
type Version string

// ParseVersion accepts exactly three numeric fields: no "v" prefix, no
// pre-release or build suffix, no leading zeros.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "v") {
		return "", fmt.Errorf("invalid contract version %q", s)
	}
	v := "v" + s
	if !semver.IsValid(v) || semver.Canonical(v) != v || semver.Prerelease(v) != "" || semver.Build(v) != "" {
		return "", fmt.Errorf("invalid contract version %q", s)
	}
	return Version(s), nil
}

func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare orders versions numerically field by field, never lexically.
func (v Version) Compare(o Version) int {
	return semver.Compare("v"+string(v), "v"+string(o))
}

func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

func (v Version) String() string { return string(v) }
