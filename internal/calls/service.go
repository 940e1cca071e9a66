package calls

import (
	"context"
	"time"
)

// Service answers call-history queries. Writes go through the webhook
// reconciler and the transcription pipeline, never through here.
type Service struct {
	store Store
	Now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, Now: time.Now}
}

type HistoryPage struct {
	Calls      []CallRecord `json:"calls"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalCount int          `json:"total_count"`
	TotalPages int          `json:"total_pages"`
}

func (s *Service) History(ctx context.Context, f HistoryFilter) (HistoryPage, error) {
	f = f.withDefaults()
	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return HistoryPage{}, err
	}
	pages := total / f.Limit
	if total%f.Limit != 0 {
		pages++
	}
	return HistoryPage{
		Calls:      rows,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalCount: total,
		TotalPages: pages,
	}, nil
}

type StatsSummary struct {
	OwnerUserID string `json:"owner_user_id,omitempty"`
	PeriodDays  int    `json:"period_days"`

	TotalCalls           int `json:"total_calls"`
	TotalDurationSeconds int `json:"total_duration_seconds"`

	EndedCalls      int `json:"ended_calls"`
	RejectedCalls   int `json:"rejected_calls"`
	BusyCalls       int `json:"busy_calls"`
	NoResponseCalls int `json:"no_response_calls"`
	ActiveCalls     int `json:"active_calls"`

	RecordedCalls    int `json:"recorded_calls"`
	TranscribedCalls int `json:"transcribed_calls"`
}

func (s *Service) Stats(ctx context.Context, ownerUserID string, periodDays int) (StatsSummary, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	from := s.Now().UTC().AddDate(0, 0, -periodDays)

	// Stats windows are bounded, so a paged walk over the store keeps the
	// query surface to the one List contract.
	out := StatsSummary{OwnerUserID: ownerUserID, PeriodDays: periodDays}
	page := 1
	for {
		rows, total, err := s.store.List(ctx, HistoryFilter{
			OwnerUserID: ownerUserID,
			From:        from,
			Page:        page,
			Limit:       200,
		})
		if err != nil {
			return StatsSummary{}, err
		}
		for _, c := range rows {
			out.TotalCalls++
			if c.DurationSeconds != nil {
				out.TotalDurationSeconds += *c.DurationSeconds
			}
			if c.RecordingURL != "" {
				out.RecordedCalls++
			}
			if c.Transcript != "" {
				out.TranscribedCalls++
			}
			switch c.Status {
			case StatusEnded:
				out.EndedCalls++
			case StatusRejected:
				out.RejectedCalls++
			case StatusLineBusy:
				out.BusyCalls++
			case StatusNoResponse:
				out.NoResponseCalls++
			case StatusRinging, StatusProcessing:
				out.ActiveCalls++
			}
		}
		if page*200 >= total || len(rows) == 0 {
			break
		}
		page++
	}
	return out, nil
}
