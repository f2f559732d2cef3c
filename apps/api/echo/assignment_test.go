package echoapi_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/proofmate/core/analysis"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
	"github.com/trezcool/proofmate/testutil"
)

type assignmentList struct {
	Success bool                    `json:"success"`
	Count   int                     `json:"count"`
	Data    []assignment.Assignment `json:"data"`
}

type submissionList struct {
	Success bool                    `json:"success"`
	Count   int                     `json:"count"`
	Data    []assignment.Submission `json:"data"`
}

func assignmentIDs(asgs []assignment.Assignment) []int {
	ids := make([]int, 0, len(asgs))
	for _, a := range asgs {
		ids = append(ids, a.ID)
	}
	return ids
}

func submissionIDs(subs []assignment.Submission) []int {
	ids := make([]int, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}
	return ids
}

// classroom holds the users matching the demo data.
type classroom struct {
	admin, teacher, alice, bob user.User
	adminToken, teacherToken   string
	aliceToken, bobToken       string
}

func newClassroom(t *testing.T, env *testEnv) classroom {
	c := classroom{
		admin:   testutil.CreateUser(t, env.usrRepo, "Admin", "admin@example.com", pwd, user.RoleAdmin, true),
		teacher: testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher@example.com", pwd, user.RoleTeacher, true),
		alice:   testutil.CreateUser(t, env.usrRepo, "Alice Smith", "alice@student.edu", pwd, user.RoleStudent, true),
		bob:     testutil.CreateUser(t, env.usrRepo, "Bob Johnson", "bob@student.edu", pwd, user.RoleStudent, true),
	}
	c.adminToken = getToken(t, env.conf, c.admin)
	c.teacherToken = getToken(t, env.conf, c.teacher)
	c.aliceToken = getToken(t, env.conf, c.alice)
	c.bobToken = getToken(t, env.conf, c.bob)
	return c
}

func Test_assignmentApi_assignments(t *testing.T) {
	env := setup(t)
	c := newClassroom(t, env)
	env.seed(t)

	runTests(t, env, []httpTest{
		{name: "Auth required", path: "/api/assignments", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Student cannot create", method: http.MethodPost, path: "/api/assignments", token: c.aliceToken,
			body:     []byte(`{"title":"Lol","dueDate":"2030-01-01T00:00:00Z"}`),
			wantCode: http.StatusForbidden, wantData: errData(t, "User role student is not authorized to access this route"),
		},
		{
			name: "Invalid assignment", method: http.MethodPost, path: "/api/assignments", token: c.teacherToken,
			body:     []byte(`{"title":"  "}`),
			wantCode: http.StatusBadRequest,
			wantData: fieldErrs(t, map[string]string{"title": "this field is required", "dueDate": "this field is required"}),
		},
		{name: "Unknown", path: "/api/assignments/99", token: c.aliceToken, wantCode: http.StatusNotFound, wantData: errData(t, "Assignment not found")},
		{name: "Invalid id", path: "/api/assignments/lol", token: c.aliceToken, wantCode: http.StatusNotFound, wantData: errData(t, "Assignment not found")},
		{
			name: "Student cannot delete", method: http.MethodDelete, path: "/api/assignments/1", token: c.aliceToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role student is not authorized to access this route"),
		},
		{
			name: "Teachers have no available assignments", path: "/api/assignments/available", token: c.teacherToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role teacher is not authorized to access this route"),
		},
	})

	t.Run("list", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/assignments", c.aliceToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp assignmentList
		decode(t, rec, &resp)
		assert.True(t, resp.Success)
		assert.Equal(t, 5, resp.Count)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, assignmentIDs(resp.Data))
	})

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/assignments/3", c.aliceToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data assignment.Assignment `json:"data"`
		}
		decode(t, rec, &resp)
		assert.Equal(t, "Linear Systems Solver", resp.Data.Title)
		assert.Equal(t, 2, resp.Data.SubmissionsCount)
	})

	t.Run("available", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/assignments/available", c.aliceToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp assignmentList
		decode(t, rec, &resp)
		assert.Equal(t, []int{3, 4, 5}, assignmentIDs(resp.Data))
	})

	t.Run("create", func(t *testing.T) {
		body := []byte(`{"title":" Gram-Schmidt ","description":"Orthonormalize","dueDate":"2030-01-01T00:00:00Z","perfectSolution":"gs.ipynb"}`)
		req, rec := newAuthRequest(http.MethodPost, "/api/assignments", c.teacherToken, body)
		env.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			Data assignment.Assignment `json:"data"`
		}
		decode(t, rec, &resp)
		assert.Equal(t, 6, resp.Data.ID)
		assert.Equal(t, "Gram-Schmidt", resp.Data.Title)
		assert.Equal(t, c.teacher.Email, resp.Data.CreatedBy)
		assert.Equal(t, assignment.DefaultMaxPoints, resp.Data.MaxPoints)
		assert.Zero(t, resp.Data.SubmissionsCount)
	})

	t.Run("delete cascades", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/api/assignments/1", c.teacherToken)
		env.do(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: okData(t, map[string]interface{}{})}, rec)

		req, rec = newAuthRequest(http.MethodGet, "/api/assignments/1", c.teacherToken)
		env.do(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, "/api/submissions", c.teacherToken)
		env.do(req, rec)
		var resp submissionList
		decode(t, rec, &resp)
		assert.Equal(t, []int{4, 5, 6, 7}, submissionIDs(resp.Data))

		req, rec = newAuthRequest(http.MethodDelete, "/api/assignments/1", c.teacherToken)
		env.do(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: errData(t, "Assignment not found")}, rec)
	})
}

func Test_assignmentApi_exportCSV(t *testing.T) {
	env := setup(t)
	c := newClassroom(t, env)

	runTests(t, env, []httpTest{
		{name: "Nothing to export", path: "/api/assignments/export", token: c.teacherToken, wantCode: http.StatusNotFound, wantData: errData(t, "No assignments to export")},
		{
			name: "Students cannot export", path: "/api/assignments/export", token: c.aliceToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role student is not authorized to access this route"),
		},
	})

	env.seed(t)
	req, rec := newAuthRequest(http.MethodGet, "/api/assignments/export", c.adminToken)
	env.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	disposition := rec.Header().Get("Content-Disposition")
	assert.True(t, strings.HasPrefix(disposition, "attachment; filename=assignments_export_"), disposition)
	assert.True(t, strings.HasSuffix(disposition, ".csv"), disposition)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "ID,Title,Description,Due Date,Created At,Created By,Max Points,Submissions Count,Reviewed Count,Avg Score", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "1,Matrix Operations,"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], ",10,3,2,7.85"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], ",10,1,0,N/A"), lines[2])
}

func multipartSubmission(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func Test_assignmentApi_submissions(t *testing.T) {
	env := setup(t)
	c := newClassroom(t, env)
	env.seed(t)

	runTests(t, env, []httpTest{
		{name: "Auth required", path: "/api/submissions", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Unknown", path: "/api/submissions/99", token: c.teacherToken, wantCode: http.StatusNotFound, wantData: errData(t, "Submission not found")},
		{
			name: "Students only see their own", path: "/api/submissions/2", token: c.aliceToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "Not authorized to access this submission"),
		},
		{
			name: "Teachers cannot submit", method: http.MethodPost, path: "/api/submissions", token: c.teacherToken,
			body:     []byte(`{"assignmentId":3,"solution":"x"}`),
			wantCode: http.StatusForbidden, wantData: errData(t, "User role teacher is not authorized to access this route"),
		},
		{
			name: "Unknown assignment", method: http.MethodPost, path: "/api/submissions", token: c.aliceToken,
			body:     []byte(`{"assignmentId":99,"solution":"x"}`),
			wantCode: http.StatusNotFound, wantData: errData(t, "Assignment not found"),
		},
		{name: "No solution", method: http.MethodPost, path: "/api/submissions", token: c.aliceToken, body: []byte(`{"assignmentId":3}`), wantCode: http.StatusBadRequest},
	})

	listIDs := func(t *testing.T, path, token string) []int {
		req, rec := newAuthRequest(http.MethodGet, path, token)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp submissionList
		decode(t, rec, &resp)
		assert.Equal(t, len(resp.Data), resp.Count)
		return submissionIDs(resp.Data)
	}

	t.Run("list", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, listIDs(t, "/api/submissions", c.teacherToken))
		assert.Equal(t, []int{1, 2, 3}, listIDs(t, "/api/submissions?assignmentId=1", c.teacherToken))
		assert.Equal(t, []int{3, 4, 6}, listIDs(t, "/api/submissions?status=pending", c.adminToken))
		assert.Equal(t, []int{1, 4}, listIDs(t, "/api/submissions", c.aliceToken))
		assert.Equal(t, []int{4}, listIDs(t, "/api/submissions?assignmentId=2", c.aliceToken))
	})

	t.Run("submit text", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/submissions", c.aliceToken, []byte(`{"assignmentId":3,"solution":"np.linalg.solve(a, b)"}`))
		env.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			Data assignment.Submission `json:"data"`
		}
		decode(t, rec, &resp)
		sub := resp.Data
		assert.Equal(t, 8, sub.ID)
		assert.Equal(t, c.alice.ID, sub.StudentID)
		assert.Equal(t, c.alice.Email, sub.StudentEmail)
		assert.Equal(t, assignment.StatusPending, sub.Status)
		assert.Equal(t, assignment.DefaultSolutionFile, sub.SolutionFile)
		assert.Equal(t, assignment.DefaultSubmitNotes, sub.Notes)
		assert.Empty(t, sub.FileKey)

		req, rec = newAuthRequest(http.MethodGet, "/api/submissions/8/file", c.teacherToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "np.linalg.solve(a, b)", rec.Body.String())
		assert.Equal(t, "attachment; filename=student_solution.ipynb", rec.Header().Get("Content-Disposition"))
	})

	t.Run("submit notebook", func(t *testing.T) {
		notebook := `{"cells":[{"source":"np.dot(a, b)"}]}`
		body, contentType := multipartSubmission(t, map[string]string{"assignmentId": "4", "notes": " done "}, "my_notebook.ipynb", notebook)
		req := httptest.NewRequest(http.MethodPost, "/api/submissions", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.aliceToken)
		rec := httptest.NewRecorder()
		env.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			Data assignment.Submission `json:"data"`
		}
		decode(t, rec, &resp)
		sub := resp.Data
		assert.Equal(t, 9, sub.ID)
		assert.Equal(t, "my_notebook.ipynb", sub.SolutionFile)
		assert.Equal(t, "done", sub.Notes)
		assert.Equal(t, notebook, sub.Solution)
		assert.True(t, strings.HasPrefix(sub.FileKey, "submissions/4/"), sub.FileKey)

		// the memory store cannot presign: the file is streamed
		req, rec = newAuthRequest(http.MethodGet, "/api/submissions/9/file", c.aliceToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, notebook, rec.Body.String())
		assert.Equal(t, "attachment; filename=my_notebook.ipynb", rec.Header().Get("Content-Disposition"))

		req, rec = newAuthRequest(http.MethodGet, "/api/submissions/9/file", c.bobToken)
		env.do(req, rec)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		assert.Equal(t, []int{5}, func() []int {
			req, rec := newAuthRequest(http.MethodGet, "/api/assignments/available", c.aliceToken)
			env.do(req, rec)
			var resp assignmentList
			decode(t, rec, &resp)
			return assignmentIDs(resp.Data)
		}())
	})

	t.Run("submit without file nor solution", func(t *testing.T) {
		body, contentType := multipartSubmission(t, map[string]string{"assignmentId": "5"}, "", "")
		req := httptest.NewRequest(http.MethodPost, "/api/submissions", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+c.bobToken)
		rec := httptest.NewRecorder()
		env.do(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}

func Test_assignmentApi_review(t *testing.T) {
	env := setup(t)
	c := newClassroom(t, env)
	env.seed(t)

	tests := []httpTest{
		{
			name: "Students cannot review", path: "/api/submissions/3/review", token: c.aliceToken, body: []byte(`{"score":10}`),
			wantCode: http.StatusForbidden, wantData: errData(t, "User role student is not authorized to access this route"),
		},
		{
			name: "Score required", path: "/api/submissions/3/review", token: c.teacherToken, body: []byte(`{"feedback":"ok"}`),
			wantCode: http.StatusBadRequest, wantData: fieldErrs(t, map[string]string{"score": "this field is required"}),
		},
		{
			name: "Score too high", path: "/api/submissions/3/review", token: c.teacherToken, body: []byte(`{"score":11}`),
			wantCode: http.StatusBadRequest, wantData: fieldErrs(t, map[string]string{"score": "score must be between 0 and 10"}),
		},
		{name: "Negative score", path: "/api/submissions/3/review", token: c.teacherToken, body: []byte(`{"score":-1}`), wantCode: http.StatusBadRequest},
		{
			name: "Unknown", path: "/api/submissions/99/review", token: c.teacherToken, body: []byte(`{"score":5}`),
			wantCode: http.StatusNotFound, wantData: errData(t, "Submission not found"),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPut
	}
	runTests(t, env, tests)

	review := func(t *testing.T, body string) assignment.Submission {
		req, rec := newAuthRequest(http.MethodPut, "/api/submissions/3/review", c.teacherToken, []byte(body))
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			Data assignment.Submission `json:"data"`
		}
		decode(t, rec, &resp)
		return resp.Data
	}
	reviewedCount := func(t *testing.T) int {
		req, rec := newAuthRequest(http.MethodGet, "/api/assignments/1", c.teacherToken)
		env.do(req, rec)
		var resp struct {
			Data assignment.Assignment `json:"data"`
		}
		decode(t, rec, &resp)
		return resp.Data.ReviewedCount
	}

	sub := review(t, `{"score":9.5}`)
	assert.Equal(t, assignment.StatusReviewed, sub.Status)
	require.NotNil(t, sub.Score)
	assert.Equal(t, 9.5, *sub.Score)
	require.NotNil(t, sub.Feedback)
	assert.Equal(t, analysis.Feedback(9.5), *sub.Feedback)
	assert.NotNil(t, sub.ReviewedAt)
	assert.Equal(t, 3, reviewedCount(t))

	sub = review(t, `{"score":6,"feedback":" Needs more tests "}`)
	assert.Equal(t, "Needs more tests", *sub.Feedback)
	assert.Equal(t, 3, reviewedCount(t)) // only the first review counts
}

func Test_assignmentApi_analyze(t *testing.T) {
	env := setup(t)
	c := newClassroom(t, env)
	env.seed(t)

	runTests(t, env, []httpTest{
		{
			name: "Students cannot analyze", method: http.MethodPost, path: "/api/submissions/3/analyze", token: c.aliceToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role student is not authorized to access this route"),
		},
		{
			name: "Unknown", method: http.MethodPost, path: "/api/submissions/99/analyze", token: c.teacherToken,
			wantCode: http.StatusNotFound, wantData: errData(t, "Submission not found"),
		},
		{
			name: "Stored analysis", method: http.MethodPost, path: "/api/submissions/1/analyze", token: c.teacherToken,
			wantData: okData(t, analysis.Score("Alice's solution content")),
		},
		{
			name: "Analyzed", method: http.MethodPost, path: "/api/submissions/3/analyze", token: c.adminToken,
			wantData: okData(t, analysis.Score("Carol's solution content")),
		},
	})

	req, rec := newAuthRequest(http.MethodGet, "/api/submissions/3", c.teacherToken)
	env.do(req, rec)
	var resp struct {
		Data assignment.Submission `json:"data"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, assignment.StatusReviewed, resp.Data.Status)
	require.NotNil(t, resp.Data.Analysis)
	require.NotNil(t, resp.Data.Score)
	assert.Equal(t, resp.Data.Analysis.Grade, *resp.Data.Score)
}
