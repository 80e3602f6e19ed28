package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/pipeline"
)

// SnapshotVersion is bumped when the snapshot shape changes.
const SnapshotVersion = 1

// Snapshot is a session's portable state: configuration, history, and
// metrics. Export and Import round-trip through JSON.
type Snapshot struct {
	Version    int             `json:"version"`
	SessionID  uuid.UUID       `json:"session_id"`
	Config     pipeline.Config `json:"config"`
	Turns      []Turn          `json:"turns"`
	Metrics    Metrics         `json:"metrics"`
	ExportedAt time.Time       `json:"exported_at"`
}

// Export captures the session state. Safe to call while a query is in
// flight; the snapshot simply predates its outcome.
func (s *Session) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)

	return Snapshot{
		Version:    SnapshotVersion,
		SessionID:  s.ID,
		Config:     s.cfg,
		Turns:      turns,
		Metrics:    s.metrics,
		ExportedAt: time.Now().UTC(),
	}
}

// Import replaces the session state with a previously exported snapshot.
// A snapshot that fails validation is rejected as a configuration error
// and the live state is untouched. Import while a query is in flight is
// rejected with ErrBusy.
func (s *Session) Import(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return &pipeline.Failure{
			Kind: pipeline.KindConfiguration,
			Err:  fmt.Errorf("decoding snapshot: %w", err),
		}
	}
	if err := validateSnapshot(&snap); err != nil {
		return &pipeline.Failure{Kind: pipeline.KindConfiguration, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}

	s.cfg = snap.Config
	s.turns = snap.Turns
	s.metrics = snap.Metrics
	s.updatedAt = time.Now().UTC()
	return nil
}

// validateSnapshot checks shape before any state is replaced.
func validateSnapshot(snap *Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d, want %d", snap.Version, SnapshotVersion)
	}
	if err := validateConfig(snap.Config); err != nil {
		return fmt.Errorf("snapshot config: %w", err)
	}
	for i, turn := range snap.Turns {
		switch turn.Role {
		case RoleUser, RoleAssistant, RoleError:
		default:
			return fmt.Errorf("turn %d has unknown role %q", i, turn.Role)
		}
		if turn.ID == uuid.Nil {
			return fmt.Errorf("turn %d has no id", i)
		}
		if turn.Role == RoleError && turn.Failure == nil {
			return fmt.Errorf("turn %d is an error turn without a failure record", i)
		}
	}
	if snap.Metrics.Queries < 0 || snap.Metrics.Failures < 0 || snap.Metrics.Failures > snap.Metrics.Queries {
		return fmt.Errorf("snapshot metrics are inconsistent")
	}
	return nil
}
