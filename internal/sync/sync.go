package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/memoryforge/internal/conflict"
	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/fyrsmithlabs/memoryforge/internal/storage/sqlite"
)

// checksumTolerance is the window (§4.11) within which a remote timestamp
// is not considered strictly newer than local, to absorb clock skew between
// machines.
const checksumTolerance = time.Second

// blobRate and blobBurst bound how fast the Engine issues calls against the
// blob store (§5: "at most one concurrent push or pull per project", but a
// single push/pull can still walk hundreds of envelopes back to back). This
// paces that per-envelope traffic instead of firing it all at once, the
// same role cenkalti/backoff plays for E's retry storms (§4.3).
const (
	blobRate  = 20 // requests per second
	blobBurst = 5
)

// Envelope is the JSON wire format for one synced memory (§6, §4.11).
type Envelope struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	UpdatedAt     string `json:"updated_at"`
	Checksum      string `json:"checksum"`
	EncryptedData string `json:"encrypted_data"`
}

// PushResult tallies the outcome of Engine.Push (§4.11).
type PushResult struct {
	Exported  int
	Conflicts []Conflict
	Errors    []Failure
}

// PullResult tallies the outcome of Engine.Pull (§4.11). Imported counts
// only brand-new memories saved as-is; Updated counts existing local
// memories that merge mutated (content/stale/archive), matching the
// original's `_merge_memory` which only bumps its `imported` counter on
// the create-new path.
type PullResult struct {
	Imported  int
	Updated   int
	Conflicts []Conflict
	Errors    []Failure
}

// Conflict records a push/pull candidate the Engine chose not to apply
// because `force` was false and the remote side looked newer (or vice
// versa) — distinct from the Conflict Resolver's logged history entries,
// which are only written when a resolution strategy actually runs.
type Conflict struct {
	MemoryID string
	Reason   string
}

// Failure records one envelope that could not be pushed or pulled.
type Failure struct {
	MemoryID string
	Err      error
}

// Engine implements the Sync Engine (Sync, §4.11): export/import of
// encrypted envelopes against a pluggable BlobStore, with checksum
// integrity and conflict detection.
type Engine struct {
	store      *sqlite.Store
	blob       BlobStore
	encryption *EncryptionLayer
	resolver   *conflict.Resolver
	limiter    *rate.Limiter
}

// New constructs a sync Engine.
func New(store *sqlite.Store, blob BlobStore, encryption *EncryptionLayer, resolver *conflict.Resolver) *Engine {
	return &Engine{
		store:      store,
		blob:       blob,
		encryption: encryption,
		resolver:   resolver,
		limiter:    rate.NewLimiter(rate.Limit(blobRate), blobBurst),
	}
}

// Push exports every memory (including archived) in projectID as an
// encrypted envelope (§4.11 step 1-3). With force=false, a remote envelope
// whose updated_at is more than one second ahead of the local memory's is
// left untouched and recorded as a conflict instead of overwritten.
func (e *Engine) Push(ctx context.Context, projectID string, force bool) (*PushResult, error) {
	if err := e.blob.Initialize(ctx); err != nil {
		return nil, err
	}

	memories, err := e.store.ListMemories(ctx, projectID, sqlite.ListOptions{IncludeArchived: true})
	if err != nil {
		return nil, err
	}

	result := &PushResult{}
	for _, m := range memories {
		if err := e.pushOne(ctx, m, force, result); err != nil {
			result.Errors = append(result.Errors, Failure{MemoryID: m.ID, Err: err})
		}
	}
	return result, nil
}

func (e *Engine) pushOne(ctx context.Context, m *memory.Memory, force bool, result *PushResult) error {
	filename := m.ID + ".json"

	if !force {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		existing, ok, err := e.blob.ReadFile(ctx, filename)
		if err != nil {
			return err
		}
		if ok {
			var remote Envelope
			if err := json.Unmarshal([]byte(existing), &remote); err != nil {
				return fmt.Errorf("parse remote envelope: %w", err)
			}
			remoteUpdated, err := time.Parse(time.RFC3339, remote.UpdatedAt)
			if err != nil {
				return fmt.Errorf("parse remote updated_at: %w", err)
			}
			if remoteUpdated.Sub(m.EffectiveUpdatedAt()) > checksumTolerance {
				result.Conflicts = append(result.Conflicts, Conflict{
					MemoryID: m.ID,
					Reason:   "remote is newer than local",
				})
				return nil
			}
		}
	}

	envelope, err := e.buildEnvelope(m)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := e.blob.WriteFile(ctx, filename, string(data)); err != nil {
		return err
	}
	result.Exported++
	return nil
}

func (e *Engine) buildEnvelope(m *memory.Memory) (*Envelope, error) {
	plaintext, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal memory: %w", err)
	}

	encrypted, err := e.encryption.Encrypt(string(plaintext))
	if err != nil {
		return nil, fmt.Errorf("encrypt memory: %w", err)
	}

	return &Envelope{
		ID:            m.ID,
		ProjectID:     m.ProjectID,
		UpdatedAt:     m.EffectiveUpdatedAt().UTC().Format(time.RFC3339),
		Checksum:      checksum(plaintext),
		EncryptedData: encrypted,
	}, nil
}

// Pull imports every envelope in the blob store belonging to projectID
// (§4.11 step 4-8): new memories are saved as-is, existing ones are merged
// with archive/stale treated as monotone and content replaced only when
// the remote side is strictly newer.
func (e *Engine) Pull(ctx context.Context, projectID string, force bool) (*PullResult, error) {
	files, err := e.blob.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	result := &PullResult{}
	for _, filename := range files {
		if err := e.pullOne(ctx, projectID, filename, force, result); err != nil {
			result.Errors = append(result.Errors, Failure{MemoryID: strings.TrimSuffix(filename, ".json"), Err: err})
		}
	}
	return result, nil
}

func (e *Engine) pullOne(ctx context.Context, projectID, filename string, force bool, result *PullResult) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	content, ok, err := e.blob.ReadFile(ctx, filename)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	var envelope Envelope
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return fmt.Errorf("parse envelope: %w", err)
	}
	if envelope.ProjectID != projectID {
		return nil
	}

	plaintext, err := e.encryption.Decrypt(envelope.EncryptedData)
	if err != nil {
		return memory.IntegrityError("decrypt envelope "+envelope.ID, err)
	}
	if checksum([]byte(plaintext)) != envelope.Checksum {
		return memory.IntegrityError("checksum mismatch for "+envelope.ID, nil)
	}

	var remote memory.Memory
	if err := json.Unmarshal([]byte(plaintext), &remote); err != nil {
		return fmt.Errorf("unmarshal memory: %w", err)
	}

	local, err := e.store.GetMemory(ctx, remote.ID)
	if memory.Is(err, memory.KindNotFound) {
		if err := e.store.CreateMemory(ctx, &remote); err != nil {
			return err
		}
		result.Imported++
		return nil
	}
	if err != nil {
		return err
	}

	return e.merge(ctx, local, &remote, force, result)
}

// merge applies §4.11's import rules: archive/stale are monotone (once set
// remotely, applied locally); content is replaced only if the remote's
// updated_at is strictly newer than local's.
func (e *Engine) merge(ctx context.Context, local, remote *memory.Memory, force bool, result *PullResult) error {
	if !force && local.EffectiveUpdatedAt().Sub(remote.EffectiveUpdatedAt()) > checksumTolerance {
		result.Conflicts = append(result.Conflicts, Conflict{
			MemoryID: local.ID,
			Reason:   "local is newer than remote",
		})
		return nil
	}

	changed := false

	if remote.EffectiveUpdatedAt().Sub(local.EffectiveUpdatedAt()) > checksumTolerance && remote.Content != local.Content {
		if err := e.store.UpdateMemory(ctx, local.ID, remote.Content, remote.EffectiveUpdatedAt()); err != nil {
			return err
		}
		changed = true
	}

	if remote.IsStale && !local.IsStale {
		reason := ""
		if remote.StaleReason != nil {
			reason = *remote.StaleReason
		}
		if err := e.store.MarkStale(ctx, local.ID, reason); err != nil {
			return err
		}
		changed = true
	}

	if remote.IsArchived && !local.IsArchived {
		if err := e.store.ArchiveMemory(ctx, local.ID, remote.ConsolidatedInto); err != nil {
			return err
		}
		changed = true
	}

	if changed {
		result.Updated++
	}
	return nil
}

// checksum computes the truncated 32-hex-char SHA-256 digest §6 specifies
// for the envelope's `checksum` field.
func checksum(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])[:32]
}
