package firmware

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonical turns "1.6.2" or "v1.6.2" into a semver string, or "" when invalid.
// Leading zeros are dropped per component, so "1.6.02" reads as 1.6.2.
func canonical(version string) string {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if v == "" {
		return ""
	}

	core, suffix := v, ""
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core, suffix = v[:i], v[i:]
	}
	parts := strings.Split(core, ".")
	for i, part := range parts {
		if part != "" && strings.Trim(part, "0123456789") == "" {
			if part = strings.TrimLeft(part, "0"); part == "" {
				part = "0"
			}
			parts[i] = part
		}
	}
	v = "v" + strings.Join(parts, ".") + suffix

	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// IsNewer reports whether candidate is strictly greater than current under
// numeric major.minor.patch ordering. Unparseable versions are never newer.
func IsNewer(candidate, current string) bool {
	c, cur := canonical(candidate), canonical(current)
	if c == "" || cur == "" {
		return false
	}
	return semver.Compare(c, cur) > 0
}
