// Package config holds the process-wide, immutable-after-init configuration
// surface the core consumes (spec §6's configuration table), loaded and
// validated the way the teacher loads its own Config.
package config

import (
	"time"

	"github.com/xmidt-org/sallust"
)

// Config is the top-level, goschtalt-unmarshaled configuration.
type Config struct {
	// MaxUsers sizes the worker pool behind the framed-socket listener.
	MaxUsers int `validate:"gte=1"`

	// AppVersion is included in the ready: frame and rendered HTML meta.
	AppVersion string

	// Listen is the address the server binds to.
	Listen string

	// StaticDir serves the plain static-asset files (JS/CSS), out of scope
	// for the core's interesting engineering but still a concrete surface.
	StaticDir string

	// ServiceNames preserves configured order for listing and rendering;
	// Services itself is an unordered map, matching goschtalt's usual
	// decoding of a YAML mapping.
	ServiceNames []string
	Services     map[string]ServiceRecord

	// Nodes, CINodes, and Environments supplement the settings page beyond
	// spec.md's routing table, grounded on the original settings_page.rs.
	Nodes        map[string]NodeRecord
	CINodes      []string
	Environments map[string]EnvironmentRecord

	Logger sallust.Config
}

// ServiceRecord is one configured deployable service.
type ServiceRecord struct {
	// Workspace is the working directory the deploy command runs in.
	Workspace string

	// DeployCommand is run via "sh -c" in Workspace; an empty command runs
	// a harmless no-op, resolving spec.md §9's open question about command
	// assembly (the original's `ls` placeholder).
	DeployCommand string
}

// NodeRecord is one configured infrastructure node.
type NodeRecord struct {
	HostName string
}

// EnvironmentRecord groups nodes under a named environment.
type EnvironmentRecord struct {
	Nodes []string
}

// OrderedServiceNames returns the configured service names in their
// configured order, falling back to map iteration order (arbitrary, but
// only reached for a hand-built Config that skipped ServiceNames) when
// unset.
func (c *Config) OrderedServiceNames() []string {
	if len(c.ServiceNames) > 0 {
		return c.ServiceNames
	}
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	return names
}

// PingIntervalRange and PongTimeoutRange are the jitter bounds from spec
// §4.1's randomization rationale, kept here as the one place the connection
// loop reads them from.
var (
	PingIntervalRange = [2]time.Duration{20 * time.Second, 30 * time.Second}
	PongTimeoutRange  = [2]time.Duration{7 * time.Second, 10 * time.Second}
)
