// Package cloudcli implements the orchestration control plane on top of
// external command-line tools. Every method is an "argv in, exit code and
// combined output out" adapter: it runs one vendor CLI invocation through
// cliexec, parses the minimal JSON it needs from the output, and maps
// failures onto classified errors via output pattern matching.
package cloudcli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/stackpilot/stackpilot/pkg/cliexec"
	"github.com/stackpilot/stackpilot/pkg/failure"
	"github.com/stackpilot/stackpilot/pkg/orchestrate"
)

// Plane is a ControlPlane backed by the cloud vendor CLI, the SQL
// command-line client, and the configuration validator binary.
type Plane struct {
	runner cliexec.Runner

	// CloudBin is the vendor CLI binary.
	CloudBin string

	// SQLBin is the SQL command-line client binary.
	SQLBin string

	// ValidatorBin is the configuration validator binary.
	ValidatorBin string
}

// Option configures a Plane.
type Option func(*Plane)

// WithCloudBin overrides the vendor CLI binary.
func WithCloudBin(bin string) Option {
	return func(p *Plane) { p.CloudBin = bin }
}

// WithSQLBin overrides the SQL client binary.
func WithSQLBin(bin string) Option {
	return func(p *Plane) { p.SQLBin = bin }
}

// WithValidatorBin overrides the validator binary.
func WithValidatorBin(bin string) Option {
	return func(p *Plane) { p.ValidatorBin = bin }
}

// New creates a Plane that executes commands through runner.
func New(runner cliexec.Runner, opts ...Option) *Plane {
	p := &Plane{
		runner:       runner,
		CloudBin:     "az",
		SQLBin:       "sqlcmd",
		ValidatorBin: "config-lint",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run executes one invocation. A spawn failure (binary missing, context
// cancelled before start) is permanent; a nonzero exit is classified from
// the combined output.
func (p *Plane) run(ctx context.Context, what string, argv ...string) (*cliexec.Invocation, error) {
	inv, err := p.runner.Run(ctx, argv)
	if err != nil {
		return nil, failure.NewPermanent(fmt.Sprintf("%s: could not start %s", what, argv[0]), err)
	}
	if !inv.OK() {
		return inv, failure.FromOutput(what+" failed", inv.Output)
	}
	return inv, nil
}

// parse unmarshals the JSON portion of a CLI invocation's output into v.
// Vendor CLIs sometimes prefix JSON with warnings on the same stream, so
// decoding starts at the first brace or bracket.
func parse(inv *cliexec.Invocation, what string, v any) error {
	out := inv.Output
	if i := strings.IndexAny(out, "{["); i > 0 {
		out = out[i:]
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		return failure.NewPermanent(fmt.Sprintf("%s: unparseable CLI output", what), err)
	}
	return nil
}

func tagArgs(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	args := []string{"--tags"}
	for k, v := range tags {
		args = append(args, k+"="+v)
	}
	return args
}

// ValidateConfig implements orchestrate.ControlPlane.
func (p *Plane) ValidateConfig(ctx context.Context, path string) error {
	inv, err := p.run(ctx, "validate configuration", p.ValidatorBin, path)
	if err != nil && inv != nil {
		// Validator rejections are permanent regardless of output wording.
		return failure.NewPermanent("configuration rejected", err).WithCode(failure.CodeValidation)
	}
	return err
}

// CreateGroup implements orchestrate.ControlPlane.
func (p *Plane) CreateGroup(ctx context.Context, spec orchestrate.GroupSpec) (string, error) {
	argv := []string{p.CloudBin, "group", "create",
		"--name", spec.Name,
		"--location", spec.Location,
		"--output", "json",
	}
	argv = append(argv, tagArgs(spec.Tags)...)
	inv, err := p.run(ctx, "create group", argv...)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := parse(inv, "create group", &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// DeleteGroupAsync implements orchestrate.ControlPlane.
func (p *Plane) DeleteGroupAsync(ctx context.Context, name string) error {
	_, err := p.run(ctx, "delete group", p.CloudBin, "group", "delete",
		"--name", name, "--yes", "--no-wait")
	return err
}

// CreateRegistry implements orchestrate.ControlPlane.
func (p *Plane) CreateRegistry(ctx context.Context, group, name string) (*orchestrate.Registry, error) {
	inv, err := p.run(ctx, "create registry", p.CloudBin, "acr", "create",
		"--resource-group", group,
		"--name", name,
		"--sku", "Basic",
		"--output", "json")
	if err != nil {
		return nil, err
	}
	var out struct {
		ID          string `json:"id"`
		LoginServer string `json:"loginServer"`
	}
	if err := parse(inv, "create registry", &out); err != nil {
		return nil, err
	}
	return &orchestrate.Registry{Name: name, ID: out.ID, LoginServer: out.LoginServer}, nil
}

// BuildImage implements orchestrate.ControlPlane.
func (p *Plane) BuildImage(ctx context.Context, registry, imageRef, contextDir string) error {
	_, err := p.run(ctx, "build image", p.CloudBin, "acr", "build",
		"--registry", registry,
		"--image", imageRef,
		contextDir)
	return err
}

// CreateIdentity implements orchestrate.ControlPlane.
func (p *Plane) CreateIdentity(ctx context.Context, group, name string) (*orchestrate.Identity, error) {
	inv, err := p.run(ctx, "create identity", p.CloudBin, "identity", "create",
		"--resource-group", group,
		"--name", name,
		"--output", "json")
	if err != nil {
		return nil, err
	}
	var out struct {
		ID          string `json:"id"`
		ClientID    string `json:"clientId"`
		PrincipalID string `json:"principalId"`
	}
	if err := parse(inv, "create identity", &out); err != nil {
		return nil, err
	}
	return &orchestrate.Identity{Name: name, ID: out.ID, ClientID: out.ClientID, PrincipalID: out.PrincipalID}, nil
}

// IdentityVisible implements orchestrate.ControlPlane. A "not found" exit is
// the expected answer while directory replication catches up, so it maps to
// false rather than an error.
func (p *Plane) IdentityVisible(ctx context.Context, principalID string) (bool, error) {
	inv, err := p.runner.Run(ctx, []string{p.CloudBin, "ad", "sp", "show", "--id", principalID})
	if err != nil {
		return false, failure.NewPermanent("identity lookup: could not start "+p.CloudBin, err)
	}
	if inv.OK() {
		return true, nil
	}
	if failure.Classify(inv.Output) == failure.ClassPermanent {
		return false, failure.FromOutput("identity lookup failed", inv.Output)
	}
	return false, nil
}

// GrantRegistryPull implements orchestrate.ControlPlane.
func (p *Plane) GrantRegistryPull(ctx context.Context, principalID, registryID string) error {
	_, err := p.run(ctx, "grant registry pull", p.CloudBin, "role", "assignment", "create",
		"--assignee-object-id", principalID,
		"--assignee-principal-type", "ServicePrincipal",
		"--role", "AcrPull",
		"--scope", registryID)
	return err
}

// CreateDatabase implements orchestrate.ControlPlane. The server is created
// first, then the database under it.
func (p *Plane) CreateDatabase(ctx context.Context, spec orchestrate.DatabaseSpec) (string, error) {
	inv, err := p.run(ctx, "create sql server", p.CloudBin, "sql", "server", "create",
		"--resource-group", spec.Group,
		"--name", spec.Server,
		"--location", spec.Location,
		"--admin-user", spec.AdminUser,
		"--admin-password", spec.AdminPassword,
		"--output", "json")
	if err != nil {
		return "", err
	}
	var out struct {
		FQDN string `json:"fullyQualifiedDomainName"`
	}
	if err := parse(inv, "create sql server", &out); err != nil {
		return "", err
	}
	if _, err := p.run(ctx, "create database", p.CloudBin, "sql", "db", "create",
		"--resource-group", spec.Group,
		"--server", spec.Server,
		"--name", spec.Database); err != nil {
		return "", err
	}
	return out.FQDN, nil
}

// ApplySchema implements orchestrate.ControlPlane.
func (p *Plane) ApplySchema(ctx context.Context, spec orchestrate.DatabaseSpec, fqdn, schemaPath string) error {
	_, err := p.run(ctx, "apply schema", p.SQLBin,
		"-S", fqdn,
		"-d", spec.Database,
		"-U", spec.AdminUser,
		"-P", spec.AdminPassword,
		"-b",
		"-i", schemaPath)
	return err
}

// CreateEnvironment implements orchestrate.ControlPlane.
func (p *Plane) CreateEnvironment(ctx context.Context, group, name, location string) (string, error) {
	inv, err := p.run(ctx, "create app environment", p.CloudBin, "containerapp", "env", "create",
		"--resource-group", group,
		"--name", name,
		"--location", location,
		"--output", "json")
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := parse(inv, "create app environment", &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// DeployApp implements orchestrate.ControlPlane.
func (p *Plane) DeployApp(ctx context.Context, spec orchestrate.AppSpec) (string, error) {
	inv, err := p.run(ctx, "deploy application", p.CloudBin, "containerapp", "create",
		"--resource-group", spec.Group,
		"--environment", spec.Environment,
		"--name", spec.Name,
		"--image", spec.Image,
		"--user-assigned", spec.IdentityID,
		"--registry-server", spec.Registry,
		"--registry-identity", spec.IdentityID,
		"--ingress", "external",
		"--target-port", strconv.Itoa(spec.TargetPort),
		"--output", "json")
	if err != nil {
		return "", err
	}
	var out struct {
		Properties struct {
			Configuration struct {
				Ingress struct {
					FQDN string `json:"fqdn"`
				} `json:"ingress"`
			} `json:"configuration"`
		} `json:"properties"`
	}
	if err := parse(inv, "deploy application", &out); err != nil {
		return "", err
	}
	fqdn := out.Properties.Configuration.Ingress.FQDN
	if fqdn == "" {
		return "", failure.NewPermanent("deploy application: no ingress hostname in CLI output", nil)
	}
	return "https://" + fqdn, nil
}

// UpdateAppImage implements orchestrate.ControlPlane.
func (p *Plane) UpdateAppImage(ctx context.Context, group, app, imageRef string) error {
	_, err := p.run(ctx, "update application image", p.CloudBin, "containerapp", "update",
		"--resource-group", group,
		"--name", app,
		"--image", imageRef)
	return err
}

// DiscoverStack implements orchestrate.ControlPlane. The stack is located by
// its project tag on the group, then each child resource is listed by type.
func (p *Plane) DiscoverStack(ctx context.Context, project string) (*orchestrate.StackRefs, error) {
	inv, err := p.run(ctx, "discover stack", p.CloudBin, "group", "list",
		"--tag", "project="+project,
		"--output", "json")
	if err != nil {
		return nil, err
	}
	var groups []struct {
		Name string `json:"name"`
	}
	if err := parse(inv, "discover stack", &groups); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, failure.NewPermanent(fmt.Sprintf("no stack tagged project=%s", project), nil).
			WithCode(failure.CodeNotFound)
	}
	if len(groups) > 1 {
		return nil, failure.NewPermanent(fmt.Sprintf("%d stacks tagged project=%s, expected one", len(groups), project), nil)
	}
	refs := &orchestrate.StackRefs{Group: groups[0].Name}

	inv, err = p.run(ctx, "list registries", p.CloudBin, "acr", "list",
		"--resource-group", refs.Group, "--output", "json")
	if err != nil {
		return nil, err
	}
	var registries []struct {
		Name        string `json:"name"`
		ID          string `json:"id"`
		LoginServer string `json:"loginServer"`
	}
	if err := parse(inv, "list registries", &registries); err != nil {
		return nil, err
	}
	if len(registries) != 1 {
		return nil, failure.NewPermanent(fmt.Sprintf("group %s has %d registries, expected one", refs.Group, len(registries)), nil)
	}
	refs.Registry = orchestrate.Registry{
		Name:        registries[0].Name,
		ID:          registries[0].ID,
		LoginServer: registries[0].LoginServer,
	}

	inv, err = p.run(ctx, "list applications", p.CloudBin, "containerapp", "list",
		"--resource-group", refs.Group, "--output", "json")
	if err != nil {
		return nil, err
	}
	var apps []struct {
		Name       string `json:"name"`
		Properties struct {
			Configuration struct {
				Ingress struct {
					FQDN string `json:"fqdn"`
				} `json:"ingress"`
			} `json:"configuration"`
		} `json:"properties"`
	}
	if err := parse(inv, "list applications", &apps); err != nil {
		return nil, err
	}
	if len(apps) != 1 {
		return nil, failure.NewPermanent(fmt.Sprintf("group %s has %d applications, expected one", refs.Group, len(apps)), nil)
	}
	refs.App = apps[0].Name
	if fqdn := apps[0].Properties.Configuration.Ingress.FQDN; fqdn != "" {
		refs.AppURL = "https://" + fqdn
	}
	return refs, nil
}
