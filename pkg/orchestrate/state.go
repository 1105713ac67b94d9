package orchestrate

// State is the mutable progress record a run threads through its steps. The
// rollback coordinator reads it to decide what, if anything, to tear down.
type State struct {
	// GroupName is set the moment the top-level aggregate is created. While
	// empty nothing cloud-side exists yet, so failure needs no cleanup.
	GroupName string

	// GroupID is the control-plane resource ID of the created aggregate.
	GroupID string

	// Refs accumulates child resource identifiers as steps complete.
	Refs StackRefs

	// Image is the fully qualified image reference once the registry exists.
	Image string

	// DatabaseFQDN is set after the database step.
	DatabaseFQDN string

	// FailureReason records the first terminal failure, empty on success.
	FailureReason string
}
