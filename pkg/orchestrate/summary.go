package orchestrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/stackpilot/stackpilot/pkg/steps"
	"github.com/stackpilot/stackpilot/pkg/stores"
)

// Summary is the terminal artifact of a successful run: everything an
// operator needs to reach what was just provisioned.
type Summary struct {
	RunID          string
	Kind           stores.RunKind
	Project        string
	Group          string
	RegistryServer string
	Image          string
	DatabaseFQDN   string
	AppURL         string
	LogPath        string
	Elapsed        time.Duration
	Steps          []steps.Step
}

// Record converts the summary to its persisted form.
func (s *Summary) Record() *stores.DeploymentRecord {
	return &stores.DeploymentRecord{
		Project:        s.Project,
		RunID:          s.RunID,
		Kind:           s.Kind,
		GroupName:      s.Group,
		RegistryServer: s.RegistryServer,
		AppURL:         s.AppURL,
		DatabaseFQDN:   s.DatabaseFQDN,
		Image:          s.Image,
		ElapsedMS:      s.Elapsed.Milliseconds(),
	}
}

// String renders the summary for the console.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deployment %s (%s) completed in %s\n", s.Project, s.Kind, s.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "  group:     %s\n", s.Group)
	if s.RegistryServer != "" {
		fmt.Fprintf(&b, "  registry:  %s\n", s.RegistryServer)
	}
	if s.Image != "" {
		fmt.Fprintf(&b, "  image:     %s\n", s.Image)
	}
	if s.DatabaseFQDN != "" {
		fmt.Fprintf(&b, "  database:  %s\n", s.DatabaseFQDN)
	}
	if s.AppURL != "" {
		fmt.Fprintf(&b, "  url:       %s\n", s.AppURL)
	}
	if s.LogPath != "" {
		fmt.Fprintf(&b, "  log:       %s\n", s.LogPath)
	}
	return b.String()
}
