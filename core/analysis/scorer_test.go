package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

const perfectSolution = `
def add(a, b):
    # check dimension of both matrices
    if a.shape != b.shape:
        print("error: dimension mismatch")
        return None
    return a + b

def inverse(m):
    if m.shape[0] != m.shape[1]:
        print("error: square matrix required")
        return None
    if np.linalg.det(m) == 0:
        print("error: singular matrix")
        return None
    return np.linalg.inv(m)
`

func TestScore(t *testing.T) {
	tests := []struct {
		name            string
		solution        string
		wantGrade       float64
		wantConfidence  float64
		wantStrengths   int
		wantCellIndexes []int
		wantSummary     string
	}{
		{
			name: "empty", solution: "",
			wantGrade: 0, wantConfidence: 0.90, wantStrengths: 0, wantCellIndexes: []int{2, 3, 4, 5},
			wantSummary: "The solution lacks the critical checks and error handling required for matrix operations.",
		},
		{
			name: "vectorized only", solution: "result = NP.DOT(a, b)",
			wantGrade: 2, wantConfidence: 0.85, wantStrengths: 1, wantCellIndexes: []int{2, 3, 4, 5},
			wantSummary: "The solution has significant validation and error handling issues in its matrix operations.",
		},
		{
			name: "det zero counts as singularity check", solution: "if det(m) == zero: raise",
			wantGrade: 2, wantConfidence: 0.85, wantStrengths: 1, wantCellIndexes: []int{2, 3, 4},
			wantSummary: "The solution has significant validation and error handling issues in its matrix operations.",
		},
		{
			name: "three features", solution: "check dimension; square matrix; np.linalg.inv",
			wantGrade: 6, wantConfidence: 0.85, wantStrengths: 3, wantCellIndexes: []int{5},
			wantSummary: "The solution implements most matrix operations correctly, but some important checks are missing.",
		},
		{
			name: "perfect", solution: perfectSolution,
			wantGrade: 10, wantConfidence: 0.98, wantStrengths: 5, wantCellIndexes: nil,
			wantSummary: "The solution correctly implements all the required matrix operations with proper validation.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.solution)
			assert.Equal(t, tt.wantGrade, got.Grade)
			assert.Equal(t, tt.wantConfidence, got.ConfidenceScore)
			assert.Equal(t, tt.wantSummary, got.ErrorSummary)
			assert.Len(t, got.DetailedFeedback.Strengths, tt.wantStrengths)
			assert.Len(t, got.DetailedFeedback.Weaknesses, len(features)-tt.wantStrengths)
			assert.Len(t, got.DetailedFeedback.Suggestions, len(features)-tt.wantStrengths)

			var idxs []int
			for _, ca := range got.CellAnnotations {
				idxs = append(idxs, ca.CellIndex)
			}
			assert.Equal(t, tt.wantCellIndexes, idxs)
		})
	}
}

func TestNotFound(t *testing.T) {
	res := NotFound()
	assert.Zero(t, res.Grade)
	assert.Zero(t, res.ConfidenceScore)
	assert.Equal(t, []string{"System error: assignment not found"}, res.DetailedFeedback.Weaknesses)
	assert.Empty(t, res.CellAnnotations)
}

func TestFeedback(t *testing.T) {
	tests := []struct {
		score  float64
		prefix string
	}{
		{score: 10, prefix: "Excellent work!"},
		{score: 9, prefix: "Excellent work!"},
		{score: 8.9, prefix: "Good job!"},
		{score: 7, prefix: "Good job!"},
		{score: 5, prefix: "Satisfactory solution"},
		{score: 4.99, prefix: "The solution needs significant improvements."},
		{score: 0, prefix: "The solution needs significant improvements."},
	}
	for _, tt := range tests {
		assert.Regexp(t, "^"+tt.prefix, Feedback(tt.score), "score %v", tt.score)
	}
}

func TestKeywordAnalyzer(t *testing.T) {
	res, err := KeywordAnalyzer{}.Analyze(context.Background(), Request{TaskID: 1, Solution: perfectSolution})
	assert.NoError(t, err)
	assert.Equal(t, float64(10), res.Grade)
}

func TestKeywordAnalyzer_noTask(t *testing.T) {
	res, err := KeywordAnalyzer{}.Analyze(context.Background(), Request{Solution: perfectSolution})
	assert.NoError(t, err)
	assert.Equal(t, NotFound(), res)
}
