package oracle_pusher

import (
	"context"
	"fmt"
	"time"

	"github.com/archon-research/oracle-pusher/internal/ports/inbound"
)

// recentUpdatesLimit bounds the update history included in a status report.
const recentUpdatesLimit = 10

var (
	_ inbound.HealthChecker  = (*Service)(nil)
	_ inbound.StatusReporter = (*Service)(nil)
)

// Status reports the last confirmed state of every declared pair, in network
// then feed configuration order, followed by the most recent updates when the
// sink can read them back.
func (s *Service) Status(ctx context.Context) (inbound.PusherStatus, error) {
	now := s.now()
	status := inbound.PusherStatus{
		State: s.State().String(),
		Pairs: make([]inbound.PairStatus, 0, len(s.feeds)*len(s.networks)),
	}
	if last := s.lastCycleUnix.Load(); last != 0 {
		status.LastCycleAt = time.Unix(0, last).UTC()
	}

	for _, network := range s.networks {
		name := network.Spec.Name
		for _, feed := range s.feeds {
			if !feed.TargetsNetwork(name) {
				continue
			}
			state, err := s.store.Get(feed.ID, name)
			if err != nil {
				return inbound.PusherStatus{}, fmt.Errorf("reading state of %s on %s: %w", feed.Symbol, name, err)
			}

			pair := inbound.PairStatus{
				Network:   name,
				Symbol:    feed.Symbol,
				FeedID:    feed.ID.String(),
				Observed:  state.IsObserved(),
				LastPrice: state.LastPrice,
				Age:       "never",
			}
			if pair.Observed {
				pair.LastConfirmedAt = state.LastConfirmedAt.UTC()
				pair.Age = FormatAge(now.Sub(state.LastConfirmedAt))
			}
			status.Pairs = append(status.Pairs, pair)
		}
	}

	status.RecentUpdates = s.recentUpdates(ctx)
	return status, nil
}

// recentUpdates never fails the report; an unreadable history is logged and
// left out.
func (s *Service) recentUpdates(ctx context.Context) []inbound.UpdateSummary {
	if s.history == nil {
		return nil
	}
	records, err := s.history.Recent(ctx, "", recentUpdatesLimit)
	if err != nil {
		s.logger.Warn("reading recent updates failed", "error", err)
		return nil
	}

	summaries := make([]inbound.UpdateSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, inbound.UpdateSummary{
			Network:     r.Network,
			BlockNumber: r.BlockNumber,
			TxHash:      r.TxHash.Hex(),
			TxURL:       r.TxURL,
			Symbols:     r.Symbols,
			FeeNative:   r.FeeNative,
			FeeUSD:      r.FeeUSD,
			ConfirmedAt: r.ConfirmedAt.UTC(),
		})
	}
	return summaries
}
