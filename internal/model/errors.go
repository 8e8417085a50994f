package model

import "errors"

// Invariant-violation sentinels checked when applying a ClusterSpec.
var (
	ErrPlatformRequired          = errors.New("platform is required when declaration.definition is set")
	ErrDefinitionClusterMismatch = errors.New("declaration.definition.cluster_id must match cluster_id")
)
