package naming

import (
	"fmt"
	"regexp"
)

// ResourceType identifies a class of control-plane resource with its own
// naming constraints.
type ResourceType string

const (
	// ResourceGroup is the top-level aggregate grouping resource.
	ResourceGroup ResourceType = "group"

	// ResourceRegistry is a container image registry.
	ResourceRegistry ResourceType = "registry"

	// ResourceIdentity is a managed identity.
	ResourceIdentity ResourceType = "identity"

	// ResourceSQLServer is a managed SQL server.
	ResourceSQLServer ResourceType = "sqlserver"

	// ResourceDatabase is a database on a SQL server.
	ResourceDatabase ResourceType = "database"

	// ResourceApp is a container application.
	ResourceApp ResourceType = "app"

	// ResourceEnvironment is a container app environment.
	ResourceEnvironment ResourceType = "environment"
)

// rules holds the per-resource-type naming rules. Registries are the
// strictest surface: global DNS labels, alphanumeric only. SQL servers are
// DNS labels that permit interior hyphens.
var rules = map[ResourceType]Rule{
	ResourceGroup: {
		MinLen: 1, MaxLen: 90,
		Pattern:         regexp.MustCompile(`^[a-zA-Z0-9._()-]+$`),
		StripNonAlnum:   false,
		CollapseHyphens: true,
	},
	ResourceRegistry: {
		MinLen: 5, MaxLen: 50,
		Pattern:       regexp.MustCompile(`^[a-z0-9]+$`),
		Lowercase:     true,
		StripNonAlnum: true,
		// registry names are strictly alphanumeric
		StripHyphens: true,
	},
	ResourceIdentity: {
		MinLen: 3, MaxLen: 128,
		Pattern:         regexp.MustCompile(`^[a-zA-Z0-9_-]+$`),
		CollapseHyphens: true,
	},
	ResourceSQLServer: {
		MinLen: 1, MaxLen: 63,
		Pattern:            regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`),
		Lowercase:          true,
		StripNonAlnum:      true,
		CollapseHyphens:    true,
		TrimLeadingHyphen:  true,
		TrimTrailingHyphen: true,
	},
	ResourceDatabase: {
		MinLen: 1, MaxLen: 128,
		Pattern:         regexp.MustCompile(`^[a-zA-Z0-9_-]+$`),
		CollapseHyphens: true,
	},
	ResourceApp: {
		MinLen: 2, MaxLen: 32,
		Pattern:            regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`),
		Lowercase:          true,
		StripNonAlnum:      true,
		CollapseHyphens:    true,
		TrimLeadingHyphen:  true,
		TrimTrailingHyphen: true,
	},
	ResourceEnvironment: {
		MinLen: 2, MaxLen: 60,
		Pattern:            regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`),
		Lowercase:          true,
		StripNonAlnum:      true,
		CollapseHyphens:    true,
		TrimLeadingHyphen:  true,
		TrimTrailingHyphen: true,
	},
}

// RuleFor returns the naming rule for a resource type.
func RuleFor(t ResourceType) (Rule, error) {
	r, ok := rules[t]
	if !ok {
		return Rule{}, fmt.Errorf("no naming rule for resource type %q", t)
	}
	return r, nil
}

// ForType sanitizes name under the rule registered for the resource type.
func ForType(t ResourceType, name string) (string, error) {
	rule, err := RuleFor(t)
	if err != nil {
		return "", err
	}
	return Sanitize(name, rule)
}
