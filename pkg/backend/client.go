// Package backend defines the boundary to the hosted project backend
// (functions platform and database). Every call here is fallible but
// non-fatal relative to the file mutation that triggered it.
package backend

import "context"

// Client is the operations surface the mutation pipeline needs.
type Client interface {
	// Deploy pushes one deployable artifact to the backend.
	Deploy(ctx context.Context, artifactName string) error

	// Remove deletes one deployed artifact.
	Remove(ctx context.Context, artifactName string) error

	// RunQuery executes SQL against the project database.
	RunQuery(ctx context.Context, query string) ([]map[string]any, error)
}

// NopClient is used for projects without a configured backend. Deploys and
// removals succeed silently; queries fail.
type NopClient struct{}

func (NopClient) Deploy(ctx context.Context, artifactName string) error { return nil }
func (NopClient) Remove(ctx context.Context, artifactName string) error { return nil }
func (NopClient) RunQuery(ctx context.Context, query string) ([]map[string]any, error) {
	return nil, ErrNoBackend
}
