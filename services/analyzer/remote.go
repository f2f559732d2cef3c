// Package analyzer holds the analysis.Analyzer backed by the notebook analysis API.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/analysis"
)

const analyzePath = "/api/analyze"

// Remote posts the student notebook and the reference solution to the analysis API.
// When the API fails, the local keyword scorer is used instead.
type Remote struct {
	baseURL  string
	client   *rest.Client
	fallback analysis.Analyzer
	logger   core.Logger
}

var _ analysis.Analyzer = (*Remote)(nil)

// New returns the Analyzer matching conf: the remote one when an API url is set, the keyword scorer otherwise.
func New(conf *core.Config, logger core.Logger) analysis.Analyzer {
	if conf.Analyzer.URL == "" {
		return analysis.KeywordAnalyzer{}
	}
	return NewRemote(conf.Analyzer.URL, conf.Analyzer.Timeout, logger)
}

func NewRemote(baseURL string, timeout time.Duration, logger core.Logger) *Remote {
	return &Remote{
		baseURL:  baseURL,
		client:   &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		fallback: analysis.KeywordAnalyzer{},
		logger:   logger,
	}
}

func (a *Remote) Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	res, err := a.call(ctx, req)
	if err != nil {
		a.logger.Error(fmt.Sprintf("analysis API failed for task %d, falling back to keyword scoring", req.TaskID), err)
		return a.fallback.Analyze(ctx, req)
	}
	return res, nil
}

func (a *Remote) call(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	body, contentType, err := buildForm(req)
	if err != nil {
		return analysis.Result{}, err
	}

	resp, err := a.client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: a.baseURL + analyzePath,
		Headers: map[string]string{"Content-Type": contentType, "Accept": "application/json"},
		Body:    body,
	})
	if err != nil {
		return analysis.Result{}, errors.Wrap(err, "calling analysis API")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return analysis.Result{}, errors.Errorf("analysis API status: %d - body: %s", resp.StatusCode, resp.Body)
	}

	var res analysis.Result
	if err = json.Unmarshal([]byte(resp.Body), &res); err != nil {
		return analysis.Result{}, errors.Wrap(err, "decoding analysis")
	}
	return res, nil
}

// buildForm encodes req as the multipart form expected by the API.
func buildForm(req analysis.Request) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	studentName := req.SolutionFile
	if studentName == "" {
		studentName = "solution.ipynb"
	}
	refName := path.Base(req.ReferenceSolution)
	if req.ReferenceSolution == "" || len(refName) > 255 {
		refName = "reference.ipynb"
	}

	for _, f := range []struct{ field, name, content string }{
		{"notebook_file", studentName, req.Solution},
		{"reference_solution", refName, req.ReferenceSolution},
	} {
		fw, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			return nil, "", errors.Wrapf(err, "creating %s part", f.field)
		}
		if _, err = fw.Write([]byte(f.content)); err != nil {
			return nil, "", errors.Wrapf(err, "writing %s part", f.field)
		}
	}
	if err := w.WriteField("task_id", strconv.Itoa(req.TaskID)); err != nil {
		return nil, "", errors.Wrap(err, "writing task_id")
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "closing form")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
