package backend

import (
	"context"
	"errors"
	"sync"
)

// ErrNoBackend indicates the project has no backend configured.
var ErrNoBackend = errors.New("backend: no backend configured for this project")

// Fake is an in-memory Client for tests. Failure injection is per artifact
// name or per query substring.
type Fake struct {
	mu sync.Mutex

	Deployed []string
	Removed  []string
	Queries  []string

	FailDeploy map[string]error
	QueryRows  []map[string]any
	QueryErr   error
}

// NewFake creates an empty fake backend.
func NewFake() *Fake {
	return &Fake{FailDeploy: make(map[string]error)}
}

func (f *Fake) Deploy(ctx context.Context, artifactName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailDeploy[artifactName]; ok {
		return err
	}
	f.Deployed = append(f.Deployed, artifactName)
	return nil
}

func (f *Fake) Remove(ctx context.Context, artifactName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, artifactName)
	return nil
}

func (f *Fake) RunQuery(ctx context.Context, query string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, query)
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	return f.QueryRows, nil
}

// DeployedNames returns a copy of the deploy log.
func (f *Fake) DeployedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Deployed...)
}

// RemovedNames returns a copy of the removal log.
func (f *Fake) RemovedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.Removed...)
}
