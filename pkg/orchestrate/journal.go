package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conveyordev/conveyor/pkg/kv"
)

// journalTTL bounds how long run records outlive the process. A week is
// plenty for re-attaching a status command to a finished batch.
const journalTTL = 7 * 24 * time.Hour

// Journal persists submitted run ids and their terminal results to a kv
// store, keyed by batch name, so another process (or a restarted CLI) can
// re-attach to an in-flight batch. Each journal instance claims exclusive
// write ownership of a batch name on first write; a second writer using
// the same name fails instead of corrupting the index.
type Journal struct {
	store  kv.Store
	prefix string
	owner  string
}

// JournalEntry is the persisted record of one submitted job.
type JournalEntry struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	State       State     `json:"state"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewJournal wraps a kv store. The prefix namespaces keys; empty means
// "conveyor".
func NewJournal(store kv.Store, prefix string) *Journal {
	if prefix == "" {
		prefix = "conveyor"
	}
	return &Journal{store: store, prefix: prefix, owner: uuid.New().String()}
}

// Close releases the underlying store connection.
func (j *Journal) Close() error {
	return j.store.Close()
}

func (j *Journal) indexKey(batch string) string {
	return fmt.Sprintf("%s:batch:%s:index", j.prefix, batch)
}

func (j *Journal) runKey(batch, id string) string {
	return fmt.Sprintf("%s:batch:%s:run:%s", j.prefix, batch, id)
}

func (j *Journal) ownerKey(batch string) string {
	return fmt.Sprintf("%s:batch:%s:owner", j.prefix, batch)
}

// claim marks this journal instance as the batch's writer. The index is
// read-modify-write, so two concurrent writers under one name would lose
// entries; the atomic SetNX makes the second one fail loudly instead.
func (j *Journal) claim(ctx context.Context, batch string) error {
	key := j.ownerKey(batch)
	ok, err := j.store.SetNX(ctx, key, []byte(j.owner), journalTTL)
	if err != nil {
		return fmt.Errorf("journal: claiming batch %s: %w", batch, err)
	}
	if ok {
		return nil
	}

	raw, err := j.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("journal: reading owner of batch %s: %w", batch, err)
	}
	if string(raw) != j.owner {
		return fmt.Errorf("journal: batch %s is already being written by another process", batch)
	}
	return nil
}

// RecordSubmitted appends a newly submitted handle to the batch's index
// and writes its initial record.
func (j *Journal) RecordSubmitted(ctx context.Context, batch string, h *JobHandle) error {
	if err := j.claim(ctx, batch); err != nil {
		return err
	}

	entry := JournalEntry{
		ID:          h.ID,
		Target:      h.Target,
		State:       h.State(),
		SubmittedAt: h.SubmittedAt,
	}
	if err := j.writeEntry(ctx, batch, entry); err != nil {
		return err
	}

	ids, err := j.readIndex(ctx, batch)
	if err != nil {
		return err
	}
	ids = append(ids, h.ID)
	return j.writeIndex(ctx, batch, ids)
}

// RecordResult updates the persisted state of a run once it resolved.
func (j *Journal) RecordResult(ctx context.Context, batch, id string, st State) error {
	raw, err := j.store.Get(ctx, j.runKey(batch, id))
	if err != nil {
		return fmt.Errorf("journal: reading run %s: %w", id, err)
	}
	var entry JournalEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("journal: decoding run %s: %w", id, err)
	}
	entry.State = st
	return j.writeEntry(ctx, batch, entry)
}

// LoadBatch returns the recorded entries of a batch in submission order.
func (j *Journal) LoadBatch(ctx context.Context, batch string) ([]JournalEntry, error) {
	ids, err := j.readIndex(ctx, batch)
	if err != nil {
		return nil, err
	}

	entries := make([]JournalEntry, 0, len(ids))
	for _, id := range ids {
		raw, err := j.store.Get(ctx, j.runKey(batch, id))
		if err != nil {
			if err == kv.ErrNotFound {
				// Record expired out from under the index.
				continue
			}
			return nil, fmt.Errorf("journal: reading run %s: %w", id, err)
		}
		var entry JournalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("journal: decoding run %s: %w", id, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Forget removes everything recorded for a batch: run records, the index
// and the ownership claim. Used once a batch's results are no longer
// interesting, rather than waiting out the TTL.
func (j *Journal) Forget(ctx context.Context, batch string) error {
	ids, err := j.readIndex(ctx, batch)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := j.store.Delete(ctx, j.runKey(batch, id)); err != nil {
			return fmt.Errorf("journal: deleting run %s: %w", id, err)
		}
	}
	if err := j.store.Delete(ctx, j.indexKey(batch)); err != nil {
		return fmt.Errorf("journal: deleting index for %s: %w", batch, err)
	}
	if err := j.store.Delete(ctx, j.ownerKey(batch)); err != nil {
		return fmt.Errorf("journal: deleting owner of %s: %w", batch, err)
	}
	return nil
}

func (j *Journal) writeEntry(ctx context.Context, batch string, entry JournalEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: encoding run %s: %w", entry.ID, err)
	}
	if err := j.store.Set(ctx, j.runKey(batch, entry.ID), raw, journalTTL); err != nil {
		return fmt.Errorf("journal: writing run %s: %w", entry.ID, err)
	}
	return nil
}

func (j *Journal) readIndex(ctx context.Context, batch string) ([]string, error) {
	raw, err := j.store.Get(ctx, j.indexKey(batch))
	if err != nil {
		if err == kv.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: reading index for %s: %w", batch, err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("journal: decoding index for %s: %w", batch, err)
	}
	return ids, nil
}

func (j *Journal) writeIndex(ctx context.Context, batch string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("journal: encoding index for %s: %w", batch, err)
	}
	if err := j.store.Set(ctx, j.indexKey(batch), raw, journalTTL); err != nil {
		return fmt.Errorf("journal: writing index for %s: %w", batch, err)
	}
	return nil
}
