package backup

import (
	"context"
	"sync"

	"eve.evalgo.org/eventledger/model"
)

// Config bounds a bulk backup/restore fan-out. Concurrency <= 0 means 1.
type Config struct {
	Concurrency     int
	ContinueOnError bool
}

// DefaultConfig runs up to four items at a time and keeps going past
// failed items.
func DefaultConfig() Config {
	return Config{Concurrency: 4, ContinueOnError: true}
}

// ObjectRef names one object to back up in a BulkBackup call.
type ObjectRef struct {
	ObjectName string
	ObjectID   string
}

// ItemResult reports the outcome of one item in a bulk operation.
type ItemResult struct {
	ObjectName string
	ObjectID   string
	BackupID   string
	Handle     *model.BackupHandle
	Err        error
}

// ProgressFunc is invoked once per completed item, in no particular order.
type ProgressFunc func(result ItemResult)

// BulkBackup backs up every ref concurrently, bounded by cfg.Concurrency.
// When cfg.ContinueOnError is false, the first failure cancels ctx for the
// remaining in-flight and not-yet-started items; the returned results still
// cover every ref. Items still run after the cancellation, with the
// cancelled ctx; an item fails with ctx.Err() only where a store it calls
// checks ctx.
func (b *Backupper) BulkBackup(ctx context.Context, refs []ObjectRef, opts Options, cfg Config, progress ProgressFunc) []ItemResult {
	return runBulk(ctx, len(refs), cfg, func(ctx context.Context, i int) ItemResult {
		ref := refs[i]
		handle, err := b.Backup(ctx, ref.ObjectName, ref.ObjectID, opts)
		result := ItemResult{ObjectName: ref.ObjectName, ObjectID: ref.ObjectID, Err: err}
		if handle != nil {
			result.Handle = handle
			result.BackupID = handle.BackupID
		}
		if progress != nil {
			progress(result)
		}
		return result
	}, cfg.ContinueOnError)
}

// RestoreRef names one backup to restore in a BulkRestore call.
type RestoreRef struct {
	BackupID       string
	ObjectName     string
	TargetObjectID string
	TargetActive   model.Stream
}

// BulkRestore restores every ref concurrently, bounded by cfg.Concurrency,
// with the same cancel-on-first-error behavior as BulkBackup.
func (b *Backupper) BulkRestore(ctx context.Context, refs []RestoreRef, cfg Config, progress ProgressFunc) []ItemResult {
	return runBulk(ctx, len(refs), cfg, func(ctx context.Context, i int) ItemResult {
		ref := refs[i]
		doc, err := b.Restore(ctx, ref.BackupID, ref.ObjectName, ref.TargetObjectID, ref.TargetActive)
		result := ItemResult{ObjectName: ref.ObjectName, BackupID: ref.BackupID, Err: err}
		if doc != nil {
			result.ObjectID = doc.ObjectID
		}
		if progress != nil {
			progress(result)
		}
		return result
	}, cfg.ContinueOnError)
}

// runBulk fans out n items across a semaphore of size cfg.Concurrency,
// collecting one ItemResult per item in index order.
func runBulk(ctx context.Context, n int, cfg Config, do func(ctx context.Context, i int) ItemResult, continueOnError bool) []ItemResult {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ItemResult, n)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			result := do(ctx, i)
			results[i] = result
			if result.Err != nil && !continueOnError {
				cancel()
			}
		}(i)
	}

	wg.Wait()
	return results
}
