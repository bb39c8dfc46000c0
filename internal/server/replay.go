package server

import (
	"context"
	"fmt"
	"io"

	"github.com/funnyzak/gqltap/pkg/entry"
	"github.com/funnyzak/gqltap/pkg/stats"
)

// ReplaySummary reports what a replay fed into the session.
type ReplaySummary struct {
	Entries     int            `json:"entries"`
	Accepted    int            `json:"accepted"`
	Dropped     int            `json:"dropped"`
	Navigations int            `json:"navigations"`
	Stats       stats.Snapshot `json:"stats"`
}

// Replay feeds recorded entries through the session in order. Entries that
// move to a different HAR page navigate the session first.
func (s *Server) Replay(ctx context.Context, r io.Reader) (ReplaySummary, error) {
	var summary ReplaySummary

	records, err := entry.DecodeEvents(r)
	if err != nil {
		return summary, err
	}
	summary.Entries = len(records)

	page := ""
	for i := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec := &records[i]
		if rec.PageRef != "" {
			if page != "" && rec.PageRef != page {
				if err := s.ctrl.Navigate(ctx); err != nil {
					return summary, fmt.Errorf("navigate to %s: %w", rec.PageRef, err)
				}
				summary.Navigations++
			}
			page = rec.PageRef
		}

		res, err := s.ctrl.Handle(ctx, rec)
		if err != nil {
			return summary, fmt.Errorf("replay entry %d: %w", i, err)
		}
		if res.Dropped {
			summary.Dropped++
		} else {
			summary.Accepted++
		}
	}

	summary.Stats = s.ctrl.Stats()
	s.logger.Info("Replay finished",
		"entries", summary.Entries,
		"accepted", summary.Accepted,
		"dropped", summary.Dropped,
		"navigations", summary.Navigations,
	)
	return summary, nil
}
