package storage

import "context"

// Lifecycle manages component lifecycle
type Lifecycle interface {
	// Start initializes and starts the component
	Start(ctx context.Context) error
	// Stop gracefully stops the component
	Stop(ctx context.Context) error
	// Ready returns true if the component is ready
	Ready() bool
}

// GroupContainer names the container holding the groups of kind
func GroupContainer(groupKind string) string {
	return groupKind
}

// ResourceContainer names the container holding the resources of a group
// kind, partitioned by group id
func ResourceContainer(groupKind, resourceKind string) string {
	return groupKind + "-" + resourceKind
}
