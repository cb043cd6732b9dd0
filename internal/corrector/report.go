package corrector

import (
	"fmt"
	"strings"
)

// ReportVersion is bumped when the report layout changes.
const ReportVersion = 1

// Correction records one replaced segment.
type Correction struct {
	Label         string  `json:"label"`
	OriginalScore float64 `json:"original_score"`
	Start         float64 `json:"start_time"`
	End           float64 `json:"end_time"`
}

// Report summarizes one correction run.
type Report struct {
	Version              int                 `json:"version"`
	TotalSegments        int                 `json:"total_segments"`
	CorrectedCount       int                 `json:"corrected_count"`
	Corrections          []Correction        `json:"corrections"`
	AverageQualityBefore float64             `json:"average_quality_before"`
	Segments             []SegmentAssessment `json:"segments"`
}

func buildReport(assessments []SegmentAssessment, corrections []Correction) *Report {
	r := &Report{
		Version:        ReportVersion,
		TotalSegments:  len(assessments),
		CorrectedCount: len(corrections),
		Corrections:    corrections,
		Segments:       append([]SegmentAssessment(nil), assessments...),
	}
	if r.Corrections == nil {
		r.Corrections = []Correction{}
	}
	if len(assessments) > 0 {
		var sum float64
		for _, a := range assessments {
			sum += a.Score
		}
		r.AverageQualityBefore = sum / float64(len(assessments))
	}
	sortByStart(r.Segments)
	return r
}

// Summary renders a one-line description for logs and history.
func (r *Report) Summary() string {
	if r.TotalSegments == 0 {
		return "no syllables detected"
	}
	labels := make([]string, 0, len(r.Corrections))
	for _, c := range r.Corrections {
		labels = append(labels, c.Label)
	}
	s := fmt.Sprintf("%d segments, %d corrected, avg %.2f", r.TotalSegments, r.CorrectedCount, r.AverageQualityBefore)
	if len(labels) > 0 {
		s += " [" + strings.Join(labels, " ") + "]"
	}
	return s
}

// Text renders a human-readable table of the per-segment results.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", r.Summary())
	for _, s := range r.Segments {
		mark := "ok "
		if s.NeedsCorrection {
			mark = "fix"
		}
		label := s.MatchedLabel
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(&b, "%3d  %s  %6.3fs-%6.3fs  %-6s %.2f  %s\n", s.Index, mark, s.Start, s.End, label, s.Score, s.Message)
	}
	return b.String()
}
