// Package consent decides whether a tool call may run without the user
// confirming it first. Each tool carries a default policy; a persisted
// per-tool override, set when the user picks "always allow", takes
// precedence over the default.
package consent

import (
	"context"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
	"github.com/chisel-dev/chisel/pkg/logging"
)

// Policy is a tool's consent requirement.
type Policy string

const (
	// PolicyAlways lets the tool run without asking.
	PolicyAlways Policy = "always"
	// PolicyAsk requires a human decision before every run.
	PolicyAsk Policy = "ask"
)

// Decision is the user's answer to a consent prompt.
type Decision int

const (
	// Deny blocks this call. The tool does not run.
	Deny Decision = iota
	// AllowOnce permits this call only.
	AllowOnce
	// AllowAlways permits this call and persists an override so the tool
	// is never asked about again.
	AllowAlways
)

// Store persists per-tool policy overrides between sessions. Policies are
// stored as their string form.
type Store interface {
	GetConsentPolicy(toolName string) (string, bool, error)
	SetConsentPolicy(toolName, policy string) error
}

// Prompter delivers an asynchronous human decision. Request blocks until
// the user answers or ctx is cancelled.
type Prompter interface {
	Request(ctx context.Context, toolName, preview string) (Decision, error)
}

// Gate evaluates effective consent for tool calls.
type Gate struct {
	store    Store
	prompter Prompter
	logger   *logging.Logger
}

// NewGate builds a gate. store may be nil, in which case overrides are
// never found and "always allow" does not persist.
func NewGate(store Store, prompter Prompter, logger *logging.Logger) *Gate {
	return &Gate{store: store, prompter: prompter, logger: logger}
}

// Check resolves effective consent for one tool call. It returns nil when
// the call may proceed and a ConsentDenied error when the user declined.
// The caller surfaces that error as the tool's result text, not as a
// turn-fatal failure.
func (g *Gate) Check(ctx context.Context, toolName string, defaultPolicy Policy, preview string) error {
	policy := defaultPolicy
	if g.store != nil {
		if override, ok, err := g.store.GetConsentPolicy(toolName); err == nil && ok {
			policy = Policy(override)
		}
	}

	if policy == PolicyAlways {
		return nil
	}

	if g.prompter == nil {
		return g.denied(toolName, "no consent prompter configured")
	}

	decision, err := g.prompter.Request(ctx, toolName, preview)
	if err != nil {
		return chiselerrors.Wrap(err, chiselerrors.ErrCodeConsentDenied, "consent prompt failed").
			WithContext("tool", toolName)
	}

	switch decision {
	case AllowOnce:
		return nil
	case AllowAlways:
		if g.store != nil {
			if err := g.store.SetConsentPolicy(toolName, string(PolicyAlways)); err != nil && g.logger != nil {
				g.logger.Warn(logging.CategoryConsent, "override_persist_failed", err.Error(), map[string]any{
					"tool": toolName,
				})
			}
		}
		return nil
	default:
		return g.denied(toolName, "user declined")
	}
}

func (g *Gate) denied(toolName, reason string) error {
	if g.logger != nil {
		g.logger.Info(logging.CategoryConsent, "denied", reason, map[string]any{"tool": toolName})
	}
	return chiselerrors.New(chiselerrors.ErrCodeConsentDenied, "user denied permission to run "+toolName).
		WithContext("tool", toolName).
		WithContext("reason", reason)
}

// AutoApprove is a Prompter that grants every request once. Used by
// headless runs and tests.
type AutoApprove struct{}

func (AutoApprove) Request(context.Context, string, string) (Decision, error) {
	return AllowOnce, nil
}

// AutoDeny is a Prompter that declines every request.
type AutoDeny struct{}

func (AutoDeny) Request(context.Context, string, string) (Decision, error) {
	return Deny, nil
}
