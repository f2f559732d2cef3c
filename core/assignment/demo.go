package assignment

import (
	"time"

	"github.com/trezcool/proofmate/core/analysis"
)

const (
	day = 24 * time.Hour

	demoTeacher = "teacher@example.com"
)

// DemoAssignments returns the sample assignments seeded into an empty store.
func DemoAssignments(now time.Time) []Assignment {
	demo := func(id int, title, description, solution string, due, created time.Duration, subs, reviewed int) Assignment {
		return Assignment{
			ID:               id,
			Title:            title,
			Description:      description,
			DueDate:          now.Add(due),
			PerfectSolution:  solution,
			CreatedAt:        now.Add(-created),
			CreatedBy:        demoTeacher,
			MaxPoints:        DefaultMaxPoints,
			SubmissionsCount: subs,
			ReviewedCount:    reviewed,
		}
	}
	return []Assignment{
		demo(1, "Matrix Operations",
			"Implement basic matrix operations like addition, subtraction, multiplication, and finding determinants.",
			"matrix_ops_solution.ipynb", 7*day, 5*day, 3, 2),
		demo(2, "Eigenvalues and Eigenvectors",
			"Calculate eigenvalues and eigenvectors for given matrices and explore their properties.",
			"eigen_solution.ipynb", 14*day, 3*day, 1, 0),
		demo(3, "Linear Systems Solver",
			"Implement methods to solve systems of linear equations using Gaussian elimination.",
			"linear_systems_solution.ipynb", 10*day, 2*day, 2, 1),
		demo(4, "Vector Spaces",
			"Explore properties of vector spaces and subspaces, including basis and dimension.",
			"vector_spaces_solution.ipynb", 5*day, 1*day, 0, 0),
		demo(5, "Orthogonality and Projections",
			"Implement algorithms for finding orthogonal basis and projections onto subspaces.",
			"orthogonality_solution.ipynb", 3*day, 4*day, 1, 1),
	}
}

type demoStudent struct {
	id    int
	name  string
	email string
}

var (
	alice = demoStudent{101, "Alice Smith", "alice@student.edu"}
	bob   = demoStudent{102, "Bob Johnson", "bob@student.edu"}
	carol = demoStudent{103, "Carol Martinez", "carol@student.edu"}
	david = demoStudent{104, "David Wilson", "david@student.edu"}
	emma  = demoStudent{105, "Emma Rodriguez", "emma@student.edu"}
)

// DemoSubmissions returns the sample submissions seeded into an empty store.
func DemoSubmissions(now time.Time) []Submission {
	pending := func(id, asgID int, st demoStudent, submitted time.Duration, solution, file, notes string) Submission {
		return Submission{
			ID:           id,
			AssignmentID: asgID,
			StudentID:    st.id,
			StudentEmail: st.email,
			StudentName:  st.name,
			SubmittedAt:  now.Add(-submitted),
			Solution:     solution,
			SolutionFile: file,
			Notes:        notes,
			Status:       StatusPending,
		}
	}
	reviewed := func(sub Submission, score, confidence float64, feedback string, reviewedAgo time.Duration) Submission {
		reviewedAt := now.Add(-reviewedAgo)
		res := analysis.Score(sub.Solution)
		sub.Status = StatusReviewed
		sub.Score = &score
		sub.AIConfidence = &confidence
		sub.Feedback = &feedback
		sub.ReviewedAt = &reviewedAt
		sub.Analysis = &res
		return sub
	}

	return []Submission{
		reviewed(pending(1, 1, alice, 3*day, "Alice's solution content", "alice_matrix_ops.ipynb",
			"Completed all exercises with minor issues"),
			8.5, 0.92, "Good work overall, but some edge cases weren't handled properly.", 2*day),
		reviewed(pending(2, 1, bob, 2*day, "Bob's solution content", "bob_matrix_ops.ipynb",
			"Implemented all required functions"),
			7.2, 0.88, "Good implementation but needs improvement in matrix multiplication algorithm.", 1*day),
		pending(3, 1, carol, 1*day, "Carol's solution content", "carol_matrix_ops.ipynb",
			"Complete solution, needs review"),
		pending(4, 2, alice, 1*day, "Alice's eigenvalues solution", "alice_eigen.ipynb",
			"Implemented all required functions for eigenvalues"),
		reviewed(pending(5, 3, bob, 36*time.Hour, "Bob's linear systems solution", "bob_linear_systems.ipynb",
			"Implemented Gaussian elimination algorithms"),
			9.1, 0.95, "Excellent implementation with good optimization.", 1*day),
		pending(6, 3, david, 1*day, "David's linear systems solution", "david_linear_systems.ipynb",
			"First attempt, may need help with some sections"),
		reviewed(pending(7, 5, emma, 2*day, "Emma's orthogonality solution", "emma_orthogonality.ipynb",
			"Implemented algorithms for orthogonal projections"),
			9.8, 0.98, "Outstanding work with excellent documentation and optimization.", 1*day),
	}
}

func testAssignment(now time.Time) Assignment {
	return Assignment{
		ID:              1,
		Title:           "Test Assignment",
		Description:     "This is a test assignment created automatically",
		DueDate:         now.Add(7 * day),
		PerfectSolution: "test_solution.ipynb",
		CreatedAt:       now,
		CreatedBy:       demoTeacher,
		MaxPoints:       DefaultMaxPoints,
	}
}

func testSubmission(now time.Time, assignmentID int) Submission {
	return Submission{
		ID:           1,
		AssignmentID: assignmentID,
		StudentID:    101,
		StudentEmail: "student@example.com",
		StudentName:  "Test Student",
		SubmittedAt:  now,
		Solution:     "Test solution content",
		SolutionFile: DefaultSolutionFile,
		Notes:        "This is a test submission created automatically",
		Status:       StatusPending,
	}
}
