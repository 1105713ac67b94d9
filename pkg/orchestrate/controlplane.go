package orchestrate

import (
	"context"
)

// GroupSpec describes the top-level aggregate to create. Deleting the group
// transitively removes every child resource created under it.
type GroupSpec struct {
	// Name is the sanitized group name.
	Name string `json:"name"`

	// Location is the control-plane region.
	Location string `json:"location"`

	// Tags label the group; the update path rediscovers the stack by tag.
	Tags map[string]string `json:"tags,omitempty"`
}

// Registry identifies a created container registry.
type Registry struct {
	// Name is the registry resource name.
	Name string `json:"name"`

	// ID is the control-plane resource ID, used as a permission scope.
	ID string `json:"id"`

	// LoginServer is the registry's image-pull hostname.
	LoginServer string `json:"login_server"`
}

// Identity identifies a created managed identity.
type Identity struct {
	// Name is the identity resource name.
	Name string `json:"name"`

	// ID is the control-plane resource ID, assigned to the app at deploy.
	ID string `json:"id"`

	// ClientID is the identity's application client ID.
	ClientID string `json:"client_id"`

	// PrincipalID is the directory principal the authorization subsystem
	// must observe before permission grants succeed.
	PrincipalID string `json:"principal_id"`
}

// DatabaseSpec describes the managed SQL server and database to create.
type DatabaseSpec struct {
	Group         string `json:"group"`
	Server        string `json:"server"`
	Database      string `json:"database"`
	Location      string `json:"location"`
	AdminUser     string `json:"admin_user"`
	AdminPassword string `json:"-"`
}

// AppSpec describes the container application to deploy.
type AppSpec struct {
	Group       string `json:"group"`
	Environment string `json:"environment"`
	Name        string `json:"name"`
	Image       string `json:"image"`
	IdentityID  string `json:"identity_id"`
	Registry    string `json:"registry"`
	TargetPort  int    `json:"target_port"`
}

// StackRefs holds the identifiers of an already-provisioned stack,
// rediscovered by tag query on the update path.
type StackRefs struct {
	Group    string   `json:"group"`
	Registry Registry `json:"registry"`
	App      string   `json:"app"`
	AppURL   string   `json:"app_url"`
}

// ControlPlane is the abstract boundary to the external provisioning CLIs.
// Implementations are "exit code + text" adapters; the sequencer never sees
// vendor argument vocabulary. Methods return classified errors (package
// failure) so the retry engine can distinguish propagation lag from
// conditions retrying cannot fix.
type ControlPlane interface {
	// ValidateConfig runs the external configuration validator against the
	// descriptor at path.
	ValidateConfig(ctx context.Context, path string) error

	// CreateGroup creates the top-level aggregate and returns its resource ID.
	CreateGroup(ctx context.Context, spec GroupSpec) (string, error)

	// DeleteGroupAsync issues a single non-blocking delete of the aggregate.
	// Children die with the parent; there is no per-child teardown.
	DeleteGroupAsync(ctx context.Context, name string) error

	// CreateRegistry creates a container registry inside the group.
	CreateRegistry(ctx context.Context, group, name string) (*Registry, error)

	// BuildImage builds and pushes imageRef from contextDir using the
	// registry-side builder.
	BuildImage(ctx context.Context, registry, imageRef, contextDir string) error

	// CreateIdentity creates a managed identity inside the group.
	CreateIdentity(ctx context.Context, group, name string) (*Identity, error)

	// IdentityVisible reports whether the directory has observed the
	// principal yet. Identity creation and directory lookup are backed by
	// independently consistent subsystems; visibility lags creation.
	IdentityVisible(ctx context.Context, principalID string) (bool, error)

	// GrantRegistryPull grants the principal image-pull rights on the
	// registry scope.
	GrantRegistryPull(ctx context.Context, principalID, registryID string) error

	// CreateDatabase creates the SQL server and database. A server name
	// collision is permanent: the caller must not retry it.
	CreateDatabase(ctx context.Context, spec DatabaseSpec) (string, error)

	// ApplySchema applies the schema file through the SQL command-line
	// client against the created database.
	ApplySchema(ctx context.Context, spec DatabaseSpec, fqdn, schemaPath string) error

	// CreateEnvironment creates the container app environment.
	CreateEnvironment(ctx context.Context, group, name, location string) (string, error)

	// DeployApp deploys the container application and returns its URL.
	DeployApp(ctx context.Context, spec AppSpec) (string, error)

	// UpdateAppImage swaps the app's image reference. This is the single
	// mutation of the idempotent update path.
	UpdateAppImage(ctx context.Context, group, app, imageRef string) error

	// DiscoverStack finds an existing stack by its project tag.
	DiscoverStack(ctx context.Context, project string) (*StackRefs, error)
}
