package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/proofmate/core/assignment"
)

func Test_dashboardApi_stats(t *testing.T) {
	env := setup(t)
	c := newClassroom(t, env)
	env.seed(t)

	runTests(t, env, []httpTest{
		{name: "Auth required", path: "/api/dashboard/teacher", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Students have no teacher dashboard", path: "/api/dashboard/teacher", token: c.aliceToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role student is not authorized to access this route"),
		},
		{
			name: "Teachers have no student dashboard", path: "/api/dashboard/student", token: c.teacherToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role teacher is not authorized to access this route"),
		},
		{
			name: "Student dashboard", path: "/api/dashboard/student", token: c.aliceToken,
			wantData: okData(t, assignment.StudentStats{TotalAssignments: 5, Completed: 1, InProgress: 4, AvgScore: 8.5, Upcoming: 3}),
		},
		{
			name: "Bob's dashboard", path: "/api/dashboard/student", token: c.bobToken,
			wantData: okData(t, assignment.StudentStats{TotalAssignments: 5, Completed: 2, InProgress: 3, AvgScore: 8.2, Upcoming: 3}),
		},
	})

	req, rec := newAuthRequest(http.MethodGet, "/api/dashboard/teacher", c.adminToken)
	env.do(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data assignment.TeacherStats `json:"data"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 5, resp.Data.TotalAssignments)
	assert.Equal(t, 3, resp.Data.PendingReviews)
	assert.Equal(t, 5, resp.Data.ActiveStudents)
	assert.InDelta(t, 8.65, resp.Data.AvgScore, 0.051)
}

func Test_dashboardApi_data(t *testing.T) {
	env := setup(t)
	c := newClassroom(t, env)

	t.Run("sync seeds an empty store", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/data/sync", c.aliceToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data assignment.SyncResult `json:"data"`
		}
		decode(t, rec, &resp)
		assert.True(t, resp.Data.AssignmentsSeeded)
		assert.True(t, resp.Data.SubmissionsSeeded)
		assert.Len(t, resp.Data.Assignments, 5)
		assert.Len(t, resp.Data.Submissions, 7)
	})

	t.Run("sync keeps the stored data", func(t *testing.T) {
		require.NoError(t, env.asgSvc.DeleteAssignment(context.Background(), 5))

		req, rec := newAuthRequest(http.MethodPost, "/api/data/sync", c.teacherToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data assignment.SyncResult `json:"data"`
		}
		decode(t, rec, &resp)
		assert.False(t, resp.Data.AssignmentsSeeded)
		assert.False(t, resp.Data.SubmissionsSeeded)
		assert.Len(t, resp.Data.Assignments, 4)
		assert.Len(t, resp.Data.Submissions, 6)
	})

	t.Run("sync recovers corrupt data", func(t *testing.T) {
		require.NoError(t, env.kv.Set(context.Background(), assignment.KeyAssignments, []byte("{lol")))

		req, rec := newAuthRequest(http.MethodPost, "/api/data/sync", c.teacherToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data assignment.SyncResult `json:"data"`
		}
		decode(t, rec, &resp)
		assert.True(t, resp.Data.AssignmentsRecovered)
		assert.Len(t, resp.Data.Assignments, 5)
	})

	runTests(t, env, []httpTest{
		{
			name: "Teachers cannot reset", method: http.MethodPost, path: "/api/data/reset", token: c.teacherToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role teacher is not authorized to access this route"),
		},
		{
			name: "Teachers cannot ensure test data", method: http.MethodPost, path: "/api/data/ensure-test-data", token: c.teacherToken,
			wantCode: http.StatusForbidden, wantData: errData(t, "User role teacher is not authorized to access this route"),
		},
		{
			name: "Nothing to ensure", method: http.MethodPost, path: "/api/data/ensure-test-data", token: c.adminToken,
			wantData: okData(t, assignment.TestDataResult{}),
		},
	})

	t.Run("reset", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/data/reset", c.adminToken)
		env.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		subs, err := env.asgSvc.ListSubmissions(context.Background(), assignment.SubmissionFilter{})
		require.NoError(t, err)
		assert.Len(t, subs, 7)
	})

	t.Run("ensure test data", func(t *testing.T) {
		require.NoError(t, env.kv.Delete(context.Background(), assignment.KeyAssignments, assignment.KeySubmissions))

		req, rec := newAuthRequest(http.MethodPost, "/api/data/ensure-test-data", c.adminToken)
		env.do(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: okData(t, assignment.TestDataResult{AssignmentCreated: true})}, rec)

		req, rec = newAuthRequest(http.MethodPost, "/api/data/ensure-test-data", c.adminToken)
		env.do(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: okData(t, assignment.TestDataResult{SubmissionCreated: true})}, rec)
	})
}
