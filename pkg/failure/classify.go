package failure

import (
	"regexp"
	"strings"
)

// classifyRule maps a pattern in raw CLI output to an error class and code.
// Rules are evaluated in order; the first match wins.
type classifyRule struct {
	pattern *regexp.Regexp
	class   Class
	code    string
}

// classifyRules is the single ordered rule table for turning free-text
// control-plane CLI output into an error class. The wrapped CLIs expose no
// structured error channel, so text matching is the only signal available.
// More specific rules must precede more general ones.
var classifyRules = []classifyRule{
	// Permanent conditions first: retrying cannot fix these.
	{regexp.MustCompile(`(?i)already exists|already in use|name.{0,20}not available|duplicate`), ClassPermanent, CodeAlreadyExists},
	{regexp.MustCompile(`(?i)authorization ?failed|permission denied|forbidden|not authorized`), ClassPermanent, CodePermissionDenied},
	{regexp.MustCompile(`(?i)invalid (argument|parameter|value)|validation error|bad request`), ClassPermanent, CodeValidation},
	{regexp.MustCompile(`(?i)quota (exceeded|limit)|exceeding quota`), ClassPermanent, CodeValidation},

	// Throttling: retry with backoff.
	{regexp.MustCompile(`(?i)too many requests|rate limit|throttl|429`), ClassThrottled, CodeRateLimited},

	// Conflicts: another operation holds the resource; retry.
	{regexp.MustCompile(`(?i)conflict|another operation is in progress|operation in progress|being deleted`), ClassConflict, CodeConflict},

	// Propagation lag between independently consistent subsystems.
	{regexp.MustCompile(`(?i)not found|no such|could not be found|does not exist`), ClassTransient, CodePropagation},
	{regexp.MustCompile(`(?i)timed? ?out|temporarily unavailable|connection (reset|refused)|service unavailable|try again|retryable`), ClassTransient, CodePropagation},
}

// Classify inspects combined CLI output and returns the error class the
// output indicates. Unmatched output is classified permanent: an unknown
// failure must stop the run rather than burn the retry budget.
func Classify(output string) Class {
	out := strings.TrimSpace(output)
	if out == "" {
		return ClassPermanent
	}
	for _, rule := range classifyRules {
		if rule.pattern.MatchString(out) {
			return rule.class
		}
	}
	return ClassPermanent
}

// FromOutput builds a classified error from combined CLI output.
func FromOutput(message, output string) *Error {
	class := Classify(output)
	e := &Error{Class: class, Message: message}
	switch class {
	case ClassThrottled:
		e.Code = CodeRateLimited
	case ClassConflict:
		e.Code = CodeConflict
	case ClassTransient:
		e.Code = CodePropagation
	default:
		for _, rule := range classifyRules {
			if rule.class == ClassPermanent && rule.pattern.MatchString(output) {
				e.Code = rule.code
				break
			}
		}
		if e.Code == "" {
			e.Code = CodeCommandFailed
		}
	}
	return e
}
