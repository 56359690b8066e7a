// Package voicebank provides the concurrency-safe persistence layer for
// voicebank oto-entry collections and recording sessions.
//
// Every mutating operation acquires the per-resource mutex from the lock map
// before reading the persisted state and holds it until the new state has
// been durably written, so concurrent callers on the same voicebank or
// session cannot lose each other's writes. Mutations on different resources
// never block on each other. Reads skip the lock entirely: because the
// underlying blob store replaces values atomically, a reader observes either
// the pre- or post-mutation state, never a partial write.
//
// A caller that abandons a mutation mid-flight without releasing its lock
// stalls all later mutations on that resource; bounding request lifetimes is
// the responsibility of the API layer above this package.
package voicebank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kazenokoe/otoforge/internal/lockmap"
	"github.com/kazenokoe/otoforge/internal/oto"
	"github.com/kazenokoe/otoforge/internal/storage"
)

// Store persists voicebank entry collections and recording sessions.
// All methods are safe for concurrent use.
type Store struct {
	blobs storage.BlobStore
	locks *lockmap.LockMap
}

// NewStore returns a Store over the given blob backend and lock map.
func NewStore(blobs storage.BlobStore, locks *lockmap.LockMap) *Store {
	return &Store{blobs: blobs, locks: locks}
}

// otoKey is the blob key holding a voicebank's whole entry collection. The
// collection is the unit of persistence: every mutation rewrites it.
func otoKey(bankID string) string {
	return "voicebanks/" + bankID + "/oto.ini"
}

// SampleKey is the blob key for one sample file inside a voicebank.
func SampleKey(bankID, filename string) string {
	return "voicebanks/" + bankID + "/samples/" + filename
}

// bankLockKey is the lock-map key serializing mutations of one voicebank.
func bankLockKey(bankID string) string {
	return "bank:" + bankID
}

// Entries returns the voicebank's full entry collection. A voicebank with no
// persisted collection yields an empty slice. Lock-free.
func (s *Store) Entries(ctx context.Context, bankID string) ([]oto.Entry, error) {
	data, err := s.blobs.Read(ctx, otoKey(bankID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("voicebank: load entries for %q: %w", bankID, err)
	}

	entries, err := oto.ParseIni(data)
	if err != nil {
		return nil, fmt.Errorf("voicebank: parse entries for %q: %w", bankID, err)
	}
	return entries, nil
}

// GetEntry returns the entry keyed by (filename, alias), or oto.ErrNotFound.
// Lock-free.
func (s *Store) GetEntry(ctx context.Context, bankID, filename, alias string) (oto.Entry, error) {
	entries, err := s.Entries(ctx, bankID)
	if err != nil {
		return oto.Entry{}, err
	}
	for _, e := range entries {
		if e.Filename == filename && e.Alias == alias {
			return e, nil
		}
	}
	return oto.Entry{}, fmt.Errorf("voicebank: entry %q/%q in %q: %w", filename, alias, bankID, oto.ErrNotFound)
}

// CreateEntry adds entry to the voicebank's collection. Params must satisfy
// the strict timing invariants; machine suggestions arrive pre-clamped and
// always pass, hand-supplied values are rejected with a *oto.TimingError.
// An existing entry with the same (filename, alias) is a conflict reported
// as oto.ErrDuplicateEntry, a distinct condition rather than a generic
// failure.
func (s *Store) CreateEntry(ctx context.Context, bankID string, entry oto.Entry) error {
	if err := oto.ValidateStrict(entry.Params); err != nil {
		return fmt.Errorf("voicebank: entry %q/%q in %q: %w", entry.Filename, entry.Alias, bankID, err)
	}
	logSoftWarnings(bankID, entry)
	return s.mutateEntries(ctx, bankID, func(entries []oto.Entry) ([]oto.Entry, error) {
		for _, e := range entries {
			if e.Key() == entry.Key() {
				return nil, fmt.Errorf("voicebank: entry %q/%q in %q: %w",
					entry.Filename, entry.Alias, bankID, oto.ErrDuplicateEntry)
			}
		}
		return append(entries, entry), nil
	})
}

// UpdateEntry replaces the entry matching entry's (filename, alias), or
// returns oto.ErrNotFound. Params are strictly validated the same way
// CreateEntry validates them.
func (s *Store) UpdateEntry(ctx context.Context, bankID string, entry oto.Entry) error {
	if err := oto.ValidateStrict(entry.Params); err != nil {
		return fmt.Errorf("voicebank: entry %q/%q in %q: %w", entry.Filename, entry.Alias, bankID, err)
	}
	logSoftWarnings(bankID, entry)
	return s.mutateEntries(ctx, bankID, func(entries []oto.Entry) ([]oto.Entry, error) {
		for i, e := range entries {
			if e.Key() == entry.Key() {
				entries[i] = entry
				return entries, nil
			}
		}
		return nil, fmt.Errorf("voicebank: entry %q/%q in %q: %w",
			entry.Filename, entry.Alias, bankID, oto.ErrNotFound)
	})
}

// DeleteEntry removes the entry keyed by (filename, alias), or returns
// oto.ErrNotFound.
func (s *Store) DeleteEntry(ctx context.Context, bankID, filename, alias string) error {
	key := oto.Entry{Filename: filename, Alias: alias}.Key()
	return s.mutateEntries(ctx, bankID, func(entries []oto.Entry) ([]oto.Entry, error) {
		for i, e := range entries {
			if e.Key() == key {
				return append(entries[:i], entries[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("voicebank: entry %q/%q in %q: %w", filename, alias, bankID, oto.ErrNotFound)
	})
}

// ReplaceEntries overwrites the voicebank's whole collection.
func (s *Store) ReplaceEntries(ctx context.Context, bankID string, entries []oto.Entry) error {
	return s.mutateEntries(ctx, bankID, func([]oto.Entry) ([]oto.Entry, error) {
		return entries, nil
	})
}

// DeleteBank removes the voicebank's entry collection.
func (s *Store) DeleteBank(ctx context.Context, bankID string) error {
	mu := s.locks.Lock(bankLockKey(bankID))
	defer mu.Unlock()

	if err := s.blobs.Delete(ctx, otoKey(bankID)); err != nil {
		return fmt.Errorf("voicebank: delete %q: %w", bankID, err)
	}
	slog.Info("voicebank deleted", "bank_id", bankID)
	return nil
}

// WriteSample durably stores one sample file's audio in the voicebank. An
// existing file with the same name is never replaced: the conflict surfaces
// as storage.ErrExists so the caller can pick another name.
func (s *Store) WriteSample(ctx context.Context, bankID, filename string, wav []byte) error {
	if err := s.blobs.Create(ctx, SampleKey(bankID, filename), wav); err != nil {
		return fmt.Errorf("voicebank: write sample %q in %q: %w", filename, bankID, err)
	}
	return nil
}

// SampleExists reports whether a sample file with this name already exists in
// the voicebank. Used by the slicing engine's filename collision policy.
func (s *Store) SampleExists(ctx context.Context, bankID, filename string) (bool, error) {
	found, err := s.blobs.Exists(ctx, SampleKey(bankID, filename))
	if err != nil {
		return false, fmt.Errorf("voicebank: check sample %q in %q: %w", filename, bankID, err)
	}
	return found, nil
}

// logSoftWarnings logs suspicious-but-legal parameter combinations on
// caller-supplied entries. Warnings never block the write.
func logSoftWarnings(bankID string, entry oto.Entry) {
	for _, w := range oto.SoftWarnings(entry.Params) {
		slog.Warn("suspicious oto parameters",
			"bank_id", bankID,
			"filename", entry.Filename,
			"alias", entry.Alias,
			"warning", w,
		)
	}
}

// mutateEntries runs a full read-modify-write cycle on the voicebank's entry
// collection under the bank's lock. The mutation function receives the
// current collection and returns the collection to persist, or an error to
// abort without writing.
func (s *Store) mutateEntries(ctx context.Context, bankID string, mutate func([]oto.Entry) ([]oto.Entry, error)) error {
	mu := s.locks.Lock(bankLockKey(bankID))
	defer mu.Unlock()

	entries, err := s.Entries(ctx, bankID)
	if err != nil {
		return err
	}

	updated, err := mutate(entries)
	if err != nil {
		return err
	}

	if err := s.blobs.Write(ctx, otoKey(bankID), oto.SerializeIni(updated)); err != nil {
		return fmt.Errorf("voicebank: persist entries for %q: %w", bankID, err)
	}
	return nil
}
