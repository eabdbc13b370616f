package tracking

import (
	"context"
	"maps"

	"github.com/LerianStudio/lib-tracking/tracking/channel"
	"github.com/LerianStudio/lib-tracking/tracking/dispatch"
	"github.com/LerianStudio/lib-tracking/tracking/log"
	"github.com/shopspring/decimal"
)

// LeadEvent is the tag event name of a qualified lead.
const LeadEvent = "Lead"

// LeadInput is what the form collected about a lead.
type LeadInput struct {
	Fields    map[string]any
	UserData  channel.UserData
	SourceURL string
}

// LeadScore is the qualification verdict of a LeadScorer.
type LeadScore struct {
	Score     int
	Qualified bool
	Value     decimal.Decimal
}

// LeadScorer qualifies a lead and prices it.
type LeadScorer interface {
	Score(ctx context.Context, input LeadInput) LeadScore
}

// LeadScorerFunc adapts a function to LeadScorer.
type LeadScorerFunc func(ctx context.Context, input LeadInput) LeadScore

// Score implements LeadScorer.
func (fn LeadScorerFunc) Score(ctx context.Context, input LeadInput) LeadScore {
	return fn(ctx, input)
}

// LeadReport is the outcome of TrackLeadReport.
type LeadReport struct {
	Score     LeadScore
	Tag       dispatch.Report
	Analytics dispatch.Report
	Err       error
}

// Accepted reports whether any channel accepted the lead event.
func (r LeadReport) Accepted() bool {
	return r.Tag.Accepted() || r.Analytics.Accepted()
}

// TrackLead scores the lead and, when qualified, sends a Lead event with its
// value to every channel including the server endpoints. Unqualified leads are
// only logged.
func (t *Tracker) TrackLead(ctx context.Context, leadID string, input LeadInput) bool {
	return t.TrackLeadReport(ctx, leadID, input).Accepted()
}

// TrackLeadReport is TrackLead returning the score and per-side reports.
func (t *Tracker) TrackLeadReport(ctx context.Context, leadID string, input LeadInput) LeadReport {
	if t == nil {
		return LeadReport{Err: ErrNilTracker}
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if leadID == "" {
		return LeadReport{Err: ErrLeadIDRequired}
	}

	if t.scorer == nil {
		t.logger.Log(ctx, log.LevelWarn, "lead received without a scorer", log.String("lead_id", leadID))

		return LeadReport{Err: ErrLeadScorerRequired}
	}

	score := t.scorer.Score(ctx, input)
	report := LeadReport{Score: score}

	if !score.Qualified {
		t.logger.Log(ctx, log.LevelInfo, "lead not qualified, not tracked",
			log.String("lead_id", leadID),
			log.Int("score", score.Score))

		return report
	}

	params := maps.Clone(input.Fields)
	if params == nil {
		params = make(map[string]any, 3)
	}

	params["value"] = score.Value.Round(2).InexactFloat64()
	params["currency"] = t.cfg.Currency
	params["lead_score"] = score.Score

	report.Tag, report.Analytics = t.SendEventReport(ctx, LeadEvent, params, leadID, dispatch.Options{
		SendToServer: true,
		UserData:     input.UserData,
		SourceURL:    input.SourceURL,
		Metadata:     map[string]any{"lead_score": score.Score, "value": score.Value.StringFixed(2)},
	})

	t.logger.Log(ctx, log.LevelInfo, "qualified lead tracked",
		log.String("lead_id", leadID),
		log.Int("score", score.Score),
		log.String("value", score.Value.StringFixed(2)),
		log.Bool("accepted", report.Accepted()))

	return report
}
