package model

import "time"

// Platform is an external provider capable of provisioning/deprovisioning
// nodes (spec.md §6 Platform API).
type Platform struct {
	NsID string `json:"ns_id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Kind string `json:"kind"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Platform) Key() NamespaceKey { return NamespaceKey{NsID: p.NsID} }

// DiscoverySettings drives the discovery scheduler of spec.md §4.9.
type DiscoverySettings struct {
	NsID    string `json:"ns_id"`
	Name    string `json:"name"` // platform name
	Enabled bool   `json:"enabled"`
	Interval time.Duration `json:"interval"`

	NextRun time.Time `json:"next_run"`
}

func (d DiscoverySettings) Key() NamespaceKey { return NamespaceKey{NsID: d.NsID} }
