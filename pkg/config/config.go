// Package config loads and validates the deployment descriptor.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to accept human-readable YAML values like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Deployment is the descriptor for one application stack.
type Deployment struct {
	// Project is the logical stack name; resource names derive from it.
	Project string `yaml:"project" validate:"required,min=2,max=40"`

	// Environment tags every created resource (dev, staging, prod).
	Environment string `yaml:"environment" validate:"required,oneof=dev staging prod"`

	// Location is the control-plane region for all resources.
	Location string `yaml:"location" validate:"required"`

	// Image describes the application container image.
	Image Image `yaml:"image" validate:"required"`

	// Database describes the managed SQL database.
	Database Database `yaml:"database" validate:"required"`

	// Health describes the post-deploy readiness probe.
	Health Health `yaml:"health"`

	// Retry overrides the consistency-join retry budgets.
	Retry RetryOverrides `yaml:"retry"`

	// Tags are extra labels stamped on the resource group.
	Tags map[string]string `yaml:"tags,omitempty"`
}

// Image describes the application container image to build and deploy.
type Image struct {
	// Name is the repository name inside the registry.
	Name string `yaml:"name" validate:"required"`

	// Tag is the image version; the update path mutates only this.
	Tag string `yaml:"tag" validate:"required"`

	// ContextDir is the build context for the registry-side image build.
	ContextDir string `yaml:"context_dir" validate:"required"`

	// Port is the port the application listens on (default 8080).
	Port int `yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
}

// Database describes the managed SQL server and database.
type Database struct {
	// Name is the database name on the created server.
	Name string `yaml:"name" validate:"required"`

	// AdminUser is the administrator login for the server.
	AdminUser string `yaml:"admin_user" validate:"required"`

	// AdminPasswordEnv names the environment variable holding the admin
	// password. The password itself never appears in the descriptor.
	AdminPasswordEnv string `yaml:"admin_password_env" validate:"required"`

	// SchemaPath is the SQL schema file applied after creation.
	SchemaPath string `yaml:"schema_path,omitempty"`
}

// Health describes the HTTP readiness probe run after deployment.
type Health struct {
	// Path is the HTTP path probed on the deployed app (default /healthz).
	Path string `yaml:"path,omitempty"`

	// Timeout bounds the whole probe sequence (default 5m).
	Timeout Duration `yaml:"timeout,omitempty"`
}

// RetryOverrides tunes the eventual-consistency join budgets.
type RetryOverrides struct {
	// PropagationAttempts is the attempt budget for identity propagation
	// and permission-grant joins (default 6).
	PropagationAttempts int `yaml:"propagation_attempts,omitempty" validate:"omitempty,min=1,max=30"`

	// BaseDelay is the first backoff delay at those joins (default 20s).
	BaseDelay Duration `yaml:"base_delay,omitempty"`

	// MaxDelay caps the backoff delay (default 240s).
	MaxDelay Duration `yaml:"max_delay,omitempty"`
}

var validate = validator.New()

// Load reads, parses and validates a deployment descriptor.
func Load(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment descriptor: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a deployment descriptor from bytes.
func Parse(data []byte) (*Deployment, error) {
	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse deployment descriptor: %w", err)
	}
	d.applyDefaults()
	if err := validate.Struct(&d); err != nil {
		return nil, fmt.Errorf("invalid deployment descriptor: %w", err)
	}
	return &d, nil
}

func (d *Deployment) applyDefaults() {
	if d.Image.Port == 0 {
		d.Image.Port = 8080
	}
	if d.Health.Path == "" {
		d.Health.Path = "/healthz"
	}
	if d.Health.Timeout == 0 {
		d.Health.Timeout = Duration(5 * time.Minute)
	}
	if d.Retry.PropagationAttempts == 0 {
		d.Retry.PropagationAttempts = 6
	}
	if d.Retry.BaseDelay == 0 {
		d.Retry.BaseDelay = Duration(20 * time.Second)
	}
	if d.Retry.MaxDelay == 0 {
		d.Retry.MaxDelay = Duration(240 * time.Second)
	}
}

// AdminPassword resolves the database admin password from the environment.
func (d *Deployment) AdminPassword() (string, error) {
	pw := os.Getenv(d.Database.AdminPasswordEnv)
	if pw == "" {
		return "", fmt.Errorf("database admin password: environment variable %s is not set",
			d.Database.AdminPasswordEnv)
	}
	return pw, nil
}

// ImageRef returns the fully qualified image reference for a registry login
// server.
func (d *Deployment) ImageRef(loginServer string) string {
	return fmt.Sprintf("%s/%s:%s", loginServer, d.Image.Name, d.Image.Tag)
}
