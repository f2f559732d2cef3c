package analysis

import "context"

// Result is a structured review of a submission. Field names follow the analyzer API.
type Result struct {
	ErrorSummary     string           `json:"error_summary"`
	DetailedFeedback DetailedFeedback `json:"detailed_feedback"`
	ConfidenceScore  float64          `json:"confidence_score"`
	Grade            float64          `json:"grade"`
	CellAnnotations  []CellAnnotation `json:"cell_annotations"`
	ErrorHighlights  []string         `json:"error_highlights,omitempty"`
}

type DetailedFeedback struct {
	Strengths   []string `json:"strengths"`
	Weaknesses  []string `json:"weaknesses"`
	Suggestions []string `json:"suggestions"`
}

type CellAnnotation struct {
	CellIndex int      `json:"cell_index"`
	Comments  []string `json:"comments"`
}

// Request holds what an Analyzer needs to review a submission.
type Request struct {
	TaskID            int
	Solution          string // notebook content or free text
	SolutionFile      string
	ReferenceSolution string // reference notebook content or file name
}

// Analyzer reviews a submission against its assignment.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Result, error)
}
