// Package config parses the service.cluster.* configuration block into a
// typed ClusterConfig and derives the coordination-service paths and
// process identity used by the rest of the cluster core, per spec.md §3
// and §6. This replaces the original's string-keyed configuration
// traversal ("service.cluster.max_working_nodes") with a struct populated
// once at startup, per the design notes' redesign guidance.
package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/liguopeng80/clustercore/internal/clustererr"
)

// WorkingMode selects the allocator strategy a cluster client uses to map
// request keys to working members.
type WorkingMode string

const (
	// Modulo routes integer keys by slot_index = key mod max_working_nodes.
	Modulo WorkingMode = "modulo"
	// HashRing routes arbitrary string keys via a consistent hash ring.
	HashRing WorkingMode = "hash_ring"
)

// raw mirrors the YAML shape of a service.cluster block.
type raw struct {
	ZKHosts         string      `yaml:"zk_hosts"`
	ConnInterval    int         `yaml:"connection_interval"`
	ClusterEnabled  bool        `yaml:"cluster_enabled"`
	ServiceName     string      `yaml:"service_name"`
	WorkingMode     WorkingMode `yaml:"working_mode"`
	MaxWorkingNodes int         `yaml:"max_working_nodes"`
	PathWorkingApps string      `yaml:"path_working_apps"`
	PathAliveApps   string      `yaml:"path_alive_apps"`
	PathAppLocks    string      `yaml:"path_app_locks"`
}

// File is the top-level YAML document recognised by this repo's config
// loader: a "service" key with a nested "cluster" block, matching spec.md
// §6's recognised-keys layout.
type File struct {
	Service struct {
		Cluster raw `yaml:"cluster"`
	} `yaml:"service"`
}

// ClusterConfig is the immutable, validated configuration bundle described
// in spec.md §3. Use Parse to build one from YAML bytes, or New to build
// one programmatically (e.g. in tests).
type ClusterConfig struct {
	Hosts              string
	ServiceName        string
	ClusterEnabled     bool
	WorkingMode        WorkingMode
	MaxWorkingNodes    int
	ConnectionInterval int // seconds; reconnect back-off

	PathWorkingApps string
	PathAliveApps   string
	PathAppLocks    string

	// Derived paths.
	WorkingRoot string
	AliveRoot   string
	LockRoot    string
}

// LockPath returns the coordination-service path for a named lock under
// this cluster's lock root, e.g. LockPath("working-mode").
func (c *ClusterConfig) LockPath(lockName string) string {
	return c.LockRoot + "/" + lockName
}

// Parse decodes a YAML document (the full process config file) and
// extracts the service.cluster block into a validated ClusterConfig. If
// serviceName is non-empty it overrides the value found in the document,
// matching the original's "service_name override" parameter.
func Parse(yamlDoc []byte, serviceName string) (*ClusterConfig, error) {
	var f File
	if err := yaml.Unmarshal(yamlDoc, &f); err != nil {
		return nil, fmt.Errorf("%w: decoding yaml: %v", clustererr.ErrConfigInvalid, err)
	}

	return New(f.Service.Cluster, serviceName)
}

// New builds and validates a ClusterConfig from already-decoded fields.
func New(r raw, serviceNameOverride string) (*ClusterConfig, error) {
	name := r.ServiceName
	if serviceNameOverride != "" {
		name = serviceNameOverride
	}

	cfg := &ClusterConfig{
		Hosts:              r.ZKHosts,
		ServiceName:        name,
		ClusterEnabled:     r.ClusterEnabled,
		WorkingMode:        r.WorkingMode,
		MaxWorkingNodes:    r.MaxWorkingNodes,
		ConnectionInterval: r.ConnInterval,
		PathWorkingApps:    strings.TrimSuffix(r.PathWorkingApps, "/"),
		PathAliveApps:      strings.TrimSuffix(r.PathAliveApps, "/"),
		PathAppLocks:       strings.TrimSuffix(r.PathAppLocks, "/"),
	}

	if cfg.WorkingMode == "" {
		cfg.WorkingMode = Modulo
	}
	if cfg.MaxWorkingNodes == 0 {
		cfg.MaxWorkingNodes = 1
	}

	if !cfg.ClusterEnabled {
		return cfg, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.WorkingRoot = cfg.PathWorkingApps + "/" + cfg.ServiceName
	cfg.AliveRoot = cfg.PathAliveApps + "/" + cfg.ServiceName
	cfg.LockRoot = cfg.PathAppLocks + "/" + cfg.ServiceName

	return cfg, nil
}

func (c *ClusterConfig) validate() error {
	if c.WorkingMode != Modulo && c.WorkingMode != HashRing {
		return fmt.Errorf("%w: working_mode must be %q or %q, got %q",
			clustererr.ErrConfigInvalid, Modulo, HashRing, c.WorkingMode)
	}
	if c.MaxWorkingNodes < 1 {
		return fmt.Errorf("%w: max_working_nodes must be >= 1, got %d",
			clustererr.ErrConfigInvalid, c.MaxWorkingNodes)
	}
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service_name is required when cluster_enabled",
			clustererr.ErrConfigInvalid)
	}
	if c.PathWorkingApps == "" || c.PathAliveApps == "" || c.PathAppLocks == "" {
		return fmt.Errorf("%w: path_working_apps, path_alive_apps and path_app_locks are required when cluster_enabled",
			clustererr.ErrConfigInvalid)
	}
	return nil
}

// NewClusterID builds the per-process identity used as the ephemeral
// candidate name: <full-server-name>-<uuid>, with every dot in the
// host/service portion replaced by a dash so the resulting node name
// carries exactly one dot — the one the coordination service's sequence
// suffix introduces.
func NewClusterID(fullServerName string) string {
	sanitized := strings.ReplaceAll(fullServerName, ".", "-")
	return fmt.Sprintf("%s-%s", sanitized, uuid.NewString())
}

// FullServerName joins host, service name, and an optional instance label
// the way spec.md §6 describes process identity, before dot-to-dash
// sanitization is applied by NewClusterID.
func FullServerName(host, serviceName, instance string) string {
	if instance == "" {
		return fmt.Sprintf("%s.%s", host, serviceName)
	}
	return fmt.Sprintf("%s.%s.%s", host, serviceName, instance)
}
