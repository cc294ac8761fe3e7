package workers

import (
	"context"
	"log/slog"

	"community-hub/contract"
	"community-hub/domain"
	"community-hub/observability"
)

// IndexerWorker drains relayed messages off the feed channel and writes them
// to the search index, keeping indexing off the fan-out path.
type IndexerWorker struct {
	feed       chan domain.Message
	searcher   contract.Searcher
	monitoring *observability.MonitoringManager
	log        *slog.Logger
}

func NewIndexerWorker(
	feed chan domain.Message,
	searcher contract.Searcher,
	monitoring *observability.MonitoringManager,
	log *slog.Logger,
) *IndexerWorker {
	return &IndexerWorker{feed: feed, searcher: searcher, monitoring: monitoring, log: log}
}

func (w *IndexerWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping indexer")
			return ctx.Err()
		case msg, ok := <-w.feed:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			if err := w.searcher.Index(ctx, msg); err != nil {
				w.log.Warn("Indexing failed", "message_id", msg.ID, "error", err)
				continue
			}
			w.monitoring.IncrIndexed()
		}
	}
}
