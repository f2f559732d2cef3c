package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/analysis"
	logsvc "github.com/trezcool/proofmate/services/logger"
)

var apiResult = analysis.Result{
	ErrorSummary:     "Dimension checks are missing.",
	DetailedFeedback: analysis.DetailedFeedback{Strengths: []string{"Clean code"}, Weaknesses: []string{}, Suggestions: []string{}},
	ConfidenceScore:  0.9,
	Grade:            6,
	CellAnnotations:  []analysis.CellAnnotation{{CellIndex: 2, Comments: []string{"check shapes"}}},
}

func newTestRemote(t *testing.T, handler http.HandlerFunc) (*Remote, *bytes.Buffer) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	var logs bytes.Buffer
	return NewRemote(srv.URL, 2*time.Second, logsvc.NewStdLogger(log.New(&logs, "", 0))), &logs
}

func formFile(t *testing.T, r *http.Request, field string) (string, string) {
	f, hdr, err := r.FormFile(field)
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	return hdr.Filename, string(content)
}

func TestRemote_Analyze(t *testing.T) {
	req := analysis.Request{
		TaskID:            3,
		Solution:          `{"cells": []}`,
		SolutionFile:      "bob_linear_systems.ipynb",
		ReferenceSolution: "linear_systems_solution.ipynb",
	}

	remote, logs := newTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, analyzePath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		name, content := formFile(t, r, "notebook_file")
		assert.Equal(t, "bob_linear_systems.ipynb", name)
		assert.Equal(t, `{"cells": []}`, content)
		name, content = formFile(t, r, "reference_solution")
		assert.Equal(t, "linear_systems_solution.ipynb", name)
		assert.Equal(t, "linear_systems_solution.ipynb", content)
		assert.Equal(t, "3", r.FormValue("task_id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(apiResult)
	})

	res, err := remote.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, apiResult, res)
	assert.Empty(t, logs.String())
}

func TestRemote_Analyze_fallback(t *testing.T) {
	req := analysis.Request{TaskID: 1, Solution: "np.linalg.det(a) after a.shape check"}
	want, _ := analysis.KeywordAnalyzer{}.Analyze(context.Background(), req)

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "OpenAI quota exceeded", http.StatusInternalServerError)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote, logs := newTestRemote(t, tt.handler)
			res, err := remote.Analyze(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, want, res)
			assert.Contains(t, logs.String(), "ERROR: analysis API failed for task 1")
		})
	}
}

func TestRemote_Analyze_unreachable(t *testing.T) {
	remote := NewRemote("http://127.0.0.1:1", 100*time.Millisecond, logsvc.NewDiscardLogger())
	res, err := remote.Analyze(context.Background(), analysis.Request{TaskID: 2})
	require.NoError(t, err)
	assert.Equal(t, analysis.Score(""), res)
}

func TestNew(t *testing.T) {
	conf := core.NewTestConfig()
	assert.IsType(t, analysis.KeywordAnalyzer{}, New(conf, logsvc.NewDiscardLogger()))

	conf.Analyzer.URL = "http://analyzer.test"
	assert.IsType(t, &Remote{}, New(conf, logsvc.NewDiscardLogger()))
}

func Test_buildForm(t *testing.T) {
	body, ct, err := buildForm(analysis.Request{TaskID: 7})
	require.NoError(t, err)
	assert.Contains(t, ct, "multipart/form-data; boundary=")
	assert.Contains(t, string(body), `filename="solution.ipynb"`)
	assert.Contains(t, string(body), `filename="reference.ipynb"`)
	assert.Contains(t, string(body), "7")
}
