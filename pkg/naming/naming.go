// Package naming sanitizes and validates proposed resource identifiers
// against per-resource-type rules before any control-plane call is made.
package naming

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule describes the identifier constraints for one resource type.
type Rule struct {
	// MinLen and MaxLen bound the final identifier length.
	MinLen int
	MaxLen int

	// Pattern is the acceptance regex the final identifier must match.
	Pattern *regexp.Regexp

	// Lowercase folds the input to lower case before other transforms.
	Lowercase bool

	// StripNonAlnum removes every character that is not a letter, digit or
	// hyphen.
	StripNonAlnum bool

	// StripHyphens removes hyphens as well, for resource types whose names
	// are strictly alphanumeric.
	StripHyphens bool

	// CollapseHyphens replaces runs of hyphens with a single hyphen.
	CollapseHyphens bool

	// TrimLeadingHyphen removes one leading hyphen.
	TrimLeadingHyphen bool

	// TrimTrailingHyphen removes one trailing hyphen, including one exposed
	// by truncation.
	TrimTrailingHyphen bool
}

// InvalidNameError reports an identifier that still violates its rule after
// sanitization.
type InvalidNameError struct {
	Name   string
	Reason string
}

// Error implements the error interface.
func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid resource name %q: %s", e.Name, e.Reason)
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9-]`)
var hyphenRuns = regexp.MustCompile(`-{2,}`)

// Sanitize transforms name under rule and validates the result. The
// transformation order is fixed; each transform applies only when the rule
// enables it. Truncation keeps the prefix: trailing timestamps and suffixes
// are disambiguating, not load-bearing.
func Sanitize(name string, rule Rule) (string, error) {
	s := name

	if rule.Lowercase {
		s = strings.ToLower(s)
	}
	if rule.StripNonAlnum {
		s = nonAlnum.ReplaceAllString(s, "")
	}
	if rule.StripHyphens {
		s = strings.ReplaceAll(s, "-", "")
	}
	if rule.CollapseHyphens {
		s = hyphenRuns.ReplaceAllString(s, "-")
	}
	if rule.TrimLeadingHyphen {
		s = strings.TrimPrefix(s, "-")
	}
	if rule.TrimTrailingHyphen {
		s = strings.TrimSuffix(s, "-")
	}
	if rule.MaxLen > 0 && len(s) > rule.MaxLen {
		s = s[:rule.MaxLen]
		// truncation may expose a new trailing hyphen
		if rule.TrimTrailingHyphen {
			s = strings.TrimSuffix(s, "-")
		}
	}

	if len(s) < rule.MinLen {
		return "", &InvalidNameError{Name: name,
			Reason: fmt.Sprintf("sanitized form %q is shorter than %d characters", s, rule.MinLen)}
	}
	if rule.Pattern != nil && !rule.Pattern.MatchString(s) {
		return "", &InvalidNameError{Name: name,
			Reason: fmt.Sprintf("sanitized form %q does not match %s", s, rule.Pattern)}
	}
	return s, nil
}
