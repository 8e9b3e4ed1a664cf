package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// ConsentOverride is a persisted per-tool consent decision. An override
// takes precedence over the tool's default policy.
type ConsentOverride struct {
	ToolName  string    `json:"tool_name"`
	Policy    string    `json:"policy"` // "always" or "ask"
	UpdatedAt time.Time `json:"updated_at"`
}

// GetConsentOverride returns the stored override for a tool, or nil when the
// tool has none.
func (s *Store) GetConsentOverride(toolName string) (*ConsentOverride, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRow(`
		SELECT tool_name, policy, updated_at
		FROM consent_overrides
		WHERE tool_name = ?
	`, toolName)

	var ov ConsentOverride
	err := row.Scan(&ov.ToolName, &ov.Policy, &ov.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get consent override: %w", err)
	}
	return &ov, nil
}

// SetConsentOverride stores or replaces the override for a tool.
func (s *Store) SetConsentOverride(toolName, policy string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if policy != "always" && policy != "ask" {
		return fmt.Errorf("invalid consent policy %q", policy)
	}

	_, err := s.db.Exec(`
		INSERT INTO consent_overrides (tool_name, policy, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tool_name) DO UPDATE SET
			policy = excluded.policy,
			updated_at = CURRENT_TIMESTAMP
	`, toolName, policy)
	if err != nil {
		return fmt.Errorf("set consent override: %w", err)
	}
	return nil
}

// GetConsentPolicy returns the override policy for a tool and whether one
// exists. It adapts the store to the consent package's Store interface.
func (s *Store) GetConsentPolicy(toolName string) (string, bool, error) {
	ov, err := s.GetConsentOverride(toolName)
	if err != nil || ov == nil {
		return "", false, err
	}
	return ov.Policy, true, nil
}

// SetConsentPolicy stores or replaces the override policy for a tool.
func (s *Store) SetConsentPolicy(toolName, policy string) error {
	return s.SetConsentOverride(toolName, policy)
}

// ClearConsentOverride removes a tool's override, restoring its default.
func (s *Store) ClearConsentOverride(toolName string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`DELETE FROM consent_overrides WHERE tool_name = ?`, toolName)
	if err != nil {
		return fmt.Errorf("clear consent override: %w", err)
	}
	return nil
}

// ListConsentOverrides returns every stored override.
func (s *Store) ListConsentOverrides() ([]ConsentOverride, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT tool_name, policy, updated_at
		FROM consent_overrides
		ORDER BY tool_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list consent overrides: %w", err)
	}
	defer rows.Close()

	var overrides []ConsentOverride
	for rows.Next() {
		var ov ConsentOverride
		if err := rows.Scan(&ov.ToolName, &ov.Policy, &ov.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan consent override: %w", err)
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}
