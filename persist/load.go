package persist

import (
	"context"

	"game-companion/model"
)

// Source names the branch of the read chain that produced the state
type Source string

const (
	SourceRemote  Source = "remote"
	SourceMemory  Source = "memory"
	SourceLocal   Source = "local"
	SourceDefault Source = "default"
)

// Load rebuilds the state. The chain is: remote store; the in-memory state
// current when the remote answered with nothing; the local snapshot when the
// remote failed or is disabled; a fresh default thread. Saves are suppressed
// while it runs. Fallbacks are logged, not returned; the error is only set
// when ctx ends.
func (s *Synchronizer) Load(ctx context.Context, current model.Collection) (model.Collection, Source, error) {
	s.mu.Lock()
	s.state = BeginLoad(s.state)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.state = EndLoad(s.inflight != nil)
		s.mu.Unlock()
	}()

	c, src := s.load(ctx, current)
	s.metrics.loads.WithLabelValues(string(src)).Inc()
	s.logger.Info("Loaded %d conversations from %s", c.Len(), src)
	return c, src, ctx.Err()
}

func (s *Synchronizer) load(ctx context.Context, current model.Collection) (model.Collection, Source) {
	now := s.opts.Now()

	snap, err := s.local.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn("Failed to read local snapshot: %v", err)
		snap = nil
	}

	if s.remote != nil {
		records, err := s.remote.LoadConversations(ctx)
		switch {
		case err != nil:
			s.logger.Warn("Failed to load conversations remotely, using local cache: %v", err)
		case len(records) == 0 && !current.IsEmpty():
			return current, SourceMemory
		case len(records) > 0:
			records = s.reconcile(ctx, records)
			var order []string
			var active string
			if snap != nil {
				order, active = snap.Order, snap.ActiveID
			}
			return model.CollectionFromRecords(records, order, active, now), SourceRemote
		}
	}

	if snap != nil && len(snap.Records) > 0 {
		return snap.Collection(now), SourceLocal
	}
	return model.NewCollection(now), SourceDefault
}

// reconcile gives remote records that lost their insights the local backup
func (s *Synchronizer) reconcile(ctx context.Context, records []model.Record) []model.Record {
	backups, err := s.local.LoadInsightBackups(ctx)
	if err != nil {
		s.logger.Warn("Failed to read insight backups: %v", err)
		return records
	}
	out := make([]model.Record, len(records))
	for i, rec := range records {
		if len(rec.Insights) == 0 {
			if backup, ok := backups[rec.ID]; ok && len(backup) > 0 {
				s.logger.Debug("Restored %d insights of %s from local backup", len(backup), rec.ID)
				rec.Insights = backup
			}
		}
		out[i] = rec
	}
	return out
}
