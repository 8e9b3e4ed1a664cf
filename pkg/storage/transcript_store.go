package storage

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Transcript chunk kinds. Markers are stored as chunks of their own so a
// replayed transcript reproduces reasoning-block boundaries exactly.
const (
	ChunkText           = "text"
	ChunkReasoning      = "reasoning"
	ChunkReasoningOpen  = "reasoning_open"
	ChunkReasoningClose = "reasoning_close"
	ChunkCancelled      = "cancelled"
)

// TranscriptChunk is one persisted transcript append.
type TranscriptChunk struct {
	ID        string    `json:"id"`
	TurnID    string    `json:"turn_id"`
	Seq       int       `json:"seq"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendTranscriptChunk persists one transcript append. Each append is
// written immediately so an abrupt process failure loses at most one
// pending chunk.
func (s *Store) AppendTranscriptChunk(turnID, kind, content string, seq int) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	_, err := s.db.Exec(`
		INSERT INTO transcript_chunks (id, turn_id, seq, kind, content)
		VALUES (?, ?, ?, ?, ?)
	`, id, turnID, seq, kind, content)
	if err != nil {
		return fmt.Errorf("append transcript chunk: %w", err)
	}
	return nil
}

// TranscriptChunks returns a turn's chunks in append order.
func (s *Store) TranscriptChunks(turnID string) ([]TranscriptChunk, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT id, turn_id, seq, kind, content, created_at
		FROM transcript_chunks
		WHERE turn_id = ?
		ORDER BY seq
	`, turnID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	var chunks []TranscriptChunk
	for rows.Next() {
		var c TranscriptChunk
		if err := rows.Scan(&c.ID, &c.TurnID, &c.Seq, &c.Kind, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// TranscriptText reassembles a turn's transcript, rendering marker chunks as
// their textual form.
func (s *Store) TranscriptText(turnID string) (string, error) {
	chunks, err := s.TranscriptChunks(turnID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Content)
	}
	return sb.String(), nil
}

// RecordTurnStart inserts a turn row in the "streaming" state.
func (s *Store) RecordTurnStart(turnID, projectPath string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO turns (id, project_path, state)
		VALUES (?, ?, 'streaming')
	`, turnID, projectPath)
	if err != nil {
		return fmt.Errorf("record turn start: %w", err)
	}
	return nil
}

// RecordTurnEnd finalizes a turn row with its terminal state and commit hash.
func (s *Store) RecordTurnEnd(turnID, state, commitHash string) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
		UPDATE turns
		SET state = ?, commit_hash = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, state, nullable(commitHash), turnID)
	if err != nil {
		return fmt.Errorf("record turn end: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
