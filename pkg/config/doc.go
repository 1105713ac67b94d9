// Package config loads and validates the deployment descriptor.
//
// The descriptor is a single YAML file naming the project, target
// environment, image build inputs, database settings, and optional retry and
// health-probe overrides. Parsing is strict: unknown keys are rejected so a
// typo fails the run before anything is provisioned.
//
// Validation happens in two layers. Struct tags
// (github.com/go-playground/validator) enforce shape and ranges; Validate
// adds the cross-field checks tags cannot express. Defaults are applied
// after a successful parse, never before, so a descriptor that omits a
// section still validates against the same rules as one that spells it out.
//
// Secrets never appear in the descriptor itself. The database administrator
// password is referenced by environment variable name and resolved at run
// time with AdminPassword.
package config
