package consent

import (
	"context"
	"testing"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
)

type memStore struct {
	policies map[string]string
	setCalls int
}

func newMemStore() *memStore {
	return &memStore{policies: make(map[string]string)}
}

func (m *memStore) GetConsentPolicy(toolName string) (string, bool, error) {
	p, ok := m.policies[toolName]
	return p, ok, nil
}

func (m *memStore) SetConsentPolicy(toolName, policy string) error {
	m.policies[toolName] = policy
	m.setCalls++
	return nil
}

type scriptedPrompter struct {
	decision Decision
	asked    int
}

func (p *scriptedPrompter) Request(context.Context, string, string) (Decision, error) {
	p.asked++
	return p.decision, nil
}

func TestCheckAlwaysPolicySkipsPrompt(t *testing.T) {
	prompter := &scriptedPrompter{decision: Deny}
	gate := NewGate(newMemStore(), prompter, nil)

	if err := gate.Check(context.Background(), "read_file", PolicyAlways, ""); err != nil {
		t.Fatalf("expected always policy to pass, got %v", err)
	}
	if prompter.asked != 0 {
		t.Fatalf("prompter should not be consulted for always policy")
	}
}

func TestCheckAskPolicyDenied(t *testing.T) {
	gate := NewGate(newMemStore(), AutoDeny{}, nil)

	err := gate.Check(context.Background(), "execute_sql", PolicyAsk, "DROP TABLE users")
	if err == nil {
		t.Fatal("expected denial")
	}
	if !chiselerrors.IsCode(err, chiselerrors.ErrCodeConsentDenied) {
		t.Fatalf("expected ConsentDenied, got %v", err)
	}
}

func TestCheckAllowOnceDoesNotPersist(t *testing.T) {
	store := newMemStore()
	gate := NewGate(store, &scriptedPrompter{decision: AllowOnce}, nil)

	if err := gate.Check(context.Background(), "write_file", PolicyAsk, ""); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if store.setCalls != 0 {
		t.Fatal("allow-once must not persist an override")
	}
}

func TestCheckAllowAlwaysPersistsOverride(t *testing.T) {
	store := newMemStore()
	prompter := &scriptedPrompter{decision: AllowAlways}
	gate := NewGate(store, prompter, nil)

	if err := gate.Check(context.Background(), "write_file", PolicyAsk, ""); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
	if store.policies["write_file"] != string(PolicyAlways) {
		t.Fatalf("expected persisted override, got %v", store.policies)
	}

	// The stored override now short-circuits the prompt.
	if err := gate.Check(context.Background(), "write_file", PolicyAsk, ""); err != nil {
		t.Fatalf("expected override to allow, got %v", err)
	}
	if prompter.asked != 1 {
		t.Fatalf("expected exactly one prompt, got %d", prompter.asked)
	}
}

func TestCheckOverrideBeatsDefault(t *testing.T) {
	store := newMemStore()
	store.policies["read_file"] = string(PolicyAlways)
	gate := NewGate(store, AutoDeny{}, nil)

	if err := gate.Check(context.Background(), "read_file", PolicyAsk, ""); err != nil {
		t.Fatalf("override should win over ask default, got %v", err)
	}
}

func TestCheckNoPrompterDenies(t *testing.T) {
	gate := NewGate(nil, nil, nil)
	err := gate.Check(context.Background(), "delete_file", PolicyAsk, "")
	if !chiselerrors.IsCode(err, chiselerrors.ErrCodeConsentDenied) {
		t.Fatalf("expected ConsentDenied, got %v", err)
	}
}
