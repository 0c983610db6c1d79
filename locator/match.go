package locator

import (
	"path"
	"strings"
)

// Included reports whether a class name matches any of the patterns. A
// pattern ending in "/**" matches the package and all its subpackages;
// other patterns use path.Match.
func Included(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "/**"); ok {
			if strings.HasPrefix(name, prefix+"/") {
				return true
			}
			continue
		}
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
