package stage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"deep-research-be/internal/pkg/logger"
	"deep-research-be/pkg/events"
	"deep-research-be/pkg/research/state"
	"deep-research-be/pkg/store"
)

const (
	highQualityThreshold = 0.7
	coverageThreshold    = 0.7
	sufficientScore      = 0.6
	sufficientResults    = 3
)

// AssessStage reviews the gathered results for quality and coverage and
// produces feedback for the synthesis stage. Empty results are not an error:
// they yield a zero completeness score so synthesis can still report the gap.
type AssessStage struct {
	logger logger.ILogger
}

func NewAssessStage(log logger.ILogger) *AssessStage {
	return &AssessStage{logger: log}
}

func (s *AssessStage) Name() string { return "assess" }

func (s *AssessStage) Key() string { return store.KeyFeedback }

func (s *AssessStage) Produce(ctx context.Context, st *state.Store, bus *events.Bus) (any, error) {
	results, _ := st.Get(store.KeyResults, []store.ResultItem(nil)).([]store.ResultItem)

	if len(results) == 0 {
		s.logger.Warn("AssessStage", "No search results to assess", nil)
		return store.Feedback{
			CompletenessScore: 0,
			Coverage: store.CoverageAnalysis{
				Gaps: []string{"No search results found"},
			},
			Recommendations: []string{"Execute search steps to gather information"},
			Sufficient:      false,
			Summary:         "Cannot proceed without search results",
		}, nil
	}

	var keywords []string
	if planVal, ok := st.Lookup(store.KeyPlan); ok {
		if plan, ok := planVal.(store.ResearchPlan); ok {
			keywords = plan.Keywords
		}
	}

	quality := analyzeQuality(results)
	coverage := analyzeCoverage(keywords, results)
	completeness := round2(0.5*quality.AvgRelevance + 0.5*coverage.CoverageRatio)
	sufficient := completeness >= sufficientScore && len(results) >= sufficientResults

	feedback := store.Feedback{
		CompletenessScore: completeness,
		Quality:           quality,
		Coverage:          coverage,
		Recommendations:   recommendations(quality, coverage),
		Sufficient:        sufficient,
		Summary:           feedbackSummary(completeness, sufficient, coverage),
	}

	s.logger.Info("AssessStage", "Assessment finished", map[string]interface{}{
		"completeness": completeness,
		"sufficient":   sufficient,
		"gaps":         len(coverage.Gaps),
	})
	return feedback, nil
}

func analyzeQuality(results []store.ResultItem) store.QualityAnalysis {
	var sum float64
	high := 0
	sources := make(map[string]struct{})
	for _, r := range results {
		sum += r.Score()
		if r.Score() >= highQualityThreshold {
			high++
		}
		sources[r.Source] = struct{}{}
	}
	return store.QualityAnalysis{
		AvgRelevance:     round2(sum / float64(len(results))),
		HighQualityCount: high,
		// Normalized against the two primary source families.
		SourceDiversity: round2(float64(len(sources)) / 2.0),
		TotalResults:    len(results),
	}
}

func analyzeCoverage(keywords []string, results []store.ResultItem) store.CoverageAnalysis {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(strings.ToLower(r.Title))
		b.WriteString(" ")
		b.WriteString(strings.ToLower(r.Snippet))
		b.WriteString(" ")
	}
	allText := b.String()

	var covered, missing []string
	for _, kw := range keywords {
		if strings.Contains(allText, strings.ToLower(kw)) {
			covered = append(covered, kw)
		} else {
			missing = append(missing, kw)
		}
	}

	ratio := 0.0
	if len(keywords) > 0 {
		ratio = float64(len(covered)) / float64(len(keywords))
	}

	var gaps []string
	if ratio < coverageThreshold {
		preview := missing
		if len(preview) > 3 {
			preview = preview[:3]
		}
		gaps = append(gaps, fmt.Sprintf("Missing coverage for: %s", strings.Join(preview, ", ")))
	}
	if len(results) < 5 {
		gaps = append(gaps, "Limited number of search results")
	}

	return store.CoverageAnalysis{
		CoverageRatio:   round2(ratio),
		CoveredKeywords: covered,
		MissingKeywords: missing,
		Gaps:            gaps,
	}
}

func recommendations(quality store.QualityAnalysis, coverage store.CoverageAnalysis) []string {
	var recs []string
	if quality.AvgRelevance < 0.5 {
		recs = append(recs, "Consider refining search keywords for better relevance")
	}
	if quality.HighQualityCount < 3 {
		recs = append(recs, "Focus on high-quality sources with strong relevance")
	}
	if coverage.CoverageRatio < coverageThreshold {
		preview := coverage.MissingKeywords
		if len(preview) > 3 {
			preview = preview[:3]
		}
		recs = append(recs, fmt.Sprintf("Address missing topics: %s", strings.Join(preview, ", ")))
	}
	if quality.SourceDiversity < 0.5 {
		recs = append(recs, "Expand search to include more diverse sources")
	}
	if len(recs) == 0 {
		recs = append(recs, "Results are sufficient for comprehensive answer synthesis")
	}
	return recs
}

func feedbackSummary(completeness float64, sufficient bool, coverage store.CoverageAnalysis) string {
	percent := int(completeness * 100)
	if sufficient {
		return fmt.Sprintf("Research is %d%% complete. Results are sufficient for synthesizing a comprehensive answer.", percent)
	}
	gapText := "quality or coverage issues"
	if len(coverage.Gaps) > 0 {
		gapText = strings.Join(coverage.Gaps, "; ")
	}
	return fmt.Sprintf("Research is %d%% complete. Identified gaps: %s. Proceeding with available information.", percent, gapText)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
