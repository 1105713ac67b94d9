package orchestrate

import (
	"fmt"

	"github.com/stackpilot/stackpilot/pkg/config"
	"github.com/stackpilot/stackpilot/pkg/naming"
)

// Names holds the derived, sanitized resource names for one deployment.
// Derivation is deterministic: the same project and environment always
// produce the same names, which is what makes the update path able to find
// its stack again.
type Names struct {
	Group       string
	Registry    string
	Identity    string
	SQLServer   string
	Database    string
	App         string
	Environment string
}

// DeriveNames computes every resource name up front so a name that cannot be
// made valid fails the run before anything is provisioned.
func DeriveNames(cfg *config.Deployment) (*Names, error) {
	base := cfg.Project + "-" + cfg.Environment

	n := &Names{}
	for _, d := range []struct {
		dst  *string
		typ  naming.ResourceType
		raw  string
		what string
	}{
		{&n.Group, naming.ResourceGroup, base + "-rg", "group"},
		{&n.Registry, naming.ResourceRegistry, base + "acr", "registry"},
		{&n.Identity, naming.ResourceIdentity, base + "-id", "identity"},
		{&n.SQLServer, naming.ResourceSQLServer, base + "-sql", "sql server"},
		{&n.Database, naming.ResourceDatabase, cfg.Database.Name, "database"},
		{&n.App, naming.ResourceApp, base + "-app", "application"},
		{&n.Environment, naming.ResourceEnvironment, base + "-env", "app environment"},
	} {
		name, err := naming.ForType(d.typ, d.raw)
		if err != nil {
			return nil, fmt.Errorf("derive %s name: %w", d.what, err)
		}
		*d.dst = name
	}
	return n, nil
}
