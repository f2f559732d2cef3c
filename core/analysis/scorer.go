package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"
)

const (
	baseConfidence    = 0.85
	perfectConfidence = 0.98
	noneConfidence    = 0.90
)

type feature struct {
	description string
	found       func(text string) bool
}

var features = []feature{
	{
		description: "matrix dimension check",
		found: func(s string) bool {
			return strings.Contains(s, "dimension") && strings.Contains(s, "check")
		},
	},
	{
		description: "square matrix check before computing the determinant and the inverse",
		found: func(s string) bool {
			return strings.Contains(s, "square") && strings.Contains(s, "matrix")
		},
	},
	{
		description: "singularity check before computing the inverse",
		found: func(s string) bool {
			return strings.Contains(s, "singular") || (strings.Contains(s, "det") && strings.Contains(s, "zero"))
		},
	},
	{
		description: "error handling returning None",
		found: func(s string) bool {
			return strings.Contains(s, "error") && strings.Contains(s, "return") && strings.Contains(s, "none")
		},
	},
	{
		description: "efficient vectorized operations",
		found: func(s string) bool {
			return strings.Contains(s, "np.dot") || strings.Contains(s, "np.linalg")
		},
	},
}

// indexes in features
const (
	dimensionCheck = iota
	squareMatrixCheck
	singularityCheck
)

// NotFound is the analysis returned when the submission's assignment does not exist.
func NotFound() Result {
	return Result{
		ErrorSummary: "Error: could not find the assignment associated with this submission.",
		DetailedFeedback: DetailedFeedback{
			Strengths:   []string{},
			Weaknesses:  []string{"System error: assignment not found"},
			Suggestions: []string{},
		},
		CellAnnotations: []CellAnnotation{},
	}
}

// Score grades a solution by looking for the key features of a correct matrix operations notebook.
func Score(solution string) Result {
	text := strings.ToLower(solution)

	res := Result{
		ConfidenceScore: baseConfidence,
		DetailedFeedback: DetailedFeedback{
			Strengths:   []string{},
			Weaknesses:  []string{},
			Suggestions: []string{},
		},
		CellAnnotations: []CellAnnotation{},
	}

	found := make([]bool, len(features))
	var foundCount int
	for i, f := range features {
		if f.found(text) {
			found[i] = true
			foundCount++
			res.DetailedFeedback.Strengths = append(res.DetailedFeedback.Strengths, fmt.Sprintf("Correctly implemented %s", f.description))
		} else {
			res.DetailedFeedback.Weaknesses = append(res.DetailedFeedback.Weaknesses, fmt.Sprintf("Missing or incorrect %s", f.description))
			res.DetailedFeedback.Suggestions = append(res.DetailedFeedback.Suggestions, fmt.Sprintf("Add a proper %s before performing the operations", f.description))
		}
	}

	res.Grade = math.Round(float64(foundCount) / float64(len(features)) * 10)

	switch {
	case foundCount == len(features):
		res.ConfidenceScore = perfectConfidence
		res.ErrorSummary = "The solution correctly implements all the required matrix operations with proper validation."
	case foundCount >= 3:
		res.ErrorSummary = "The solution implements most matrix operations correctly, but some important checks are missing."
	case foundCount >= 1:
		res.ErrorSummary = "The solution has significant validation and error handling issues in its matrix operations."
	default:
		res.ErrorSummary = "The solution lacks the critical checks and error handling required for matrix operations."
		res.ConfidenceScore = noneConfidence
	}

	if !found[dimensionCheck] {
		res.CellAnnotations = append(res.CellAnnotations,
			CellAnnotation{CellIndex: 2, Comments: []string{"Missing dimension validation for matrix addition"}},
			CellAnnotation{CellIndex: 3, Comments: []string{"Incorrect dimension check for matrix multiplication"}},
		)
	}
	if !found[squareMatrixCheck] {
		res.CellAnnotations = append(res.CellAnnotations,
			CellAnnotation{CellIndex: 4, Comments: []string{"Missing check that the matrix is square before computing the determinant"}},
		)
	}
	if !found[singularityCheck] {
		res.CellAnnotations = append(res.CellAnnotations,
			CellAnnotation{CellIndex: 5, Comments: []string{"Missing singularity check before computing the inverse matrix"}},
		)
	}
	return res
}

// Feedback returns the generic feedback text for a score out of 10.
func Feedback(score float64) string {
	switch {
	case score >= 9:
		return "Excellent work! The solution correctly implements all required operations and demonstrates a solid understanding of linear algebra concepts. The code is well-structured and efficient."
	case score >= 7:
		return "Good job! The solution correctly implements most operations with minor issues. The approach shows understanding of linear algebra concepts but could be optimized in some places."
	case score >= 5:
		return "Satisfactory solution with some issues. The implementation works for basic cases but doesn't handle all edge cases correctly. Some improvements are needed in understanding of matrix operations."
	default:
		return "The solution needs significant improvements. There are fundamental issues with the implementation of matrix operations. Please review the concepts and try again."
	}
}

// KeywordAnalyzer is the local Analyzer backed by Score.
type KeywordAnalyzer struct{}

var _ Analyzer = KeywordAnalyzer{}

// Analyze scores req.Solution. A request without a task gets the NotFound analysis.
func (KeywordAnalyzer) Analyze(_ context.Context, req Request) (Result, error) {
	if req.TaskID <= 0 {
		return NotFound(), nil
	}
	return Score(req.Solution), nil
}
