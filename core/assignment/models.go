package assignment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/analysis"
)

// Submission statuses
const (
	StatusPending  = "pending"
	StatusReviewed = "reviewed"
)

const (
	DefaultMaxPoints    = 10
	DefaultCreator      = "demo@proofmate.edu"
	DefaultSolutionFile = "student_solution.ipynb"
	DefaultSubmitNotes  = "Submitted from student dashboard"
)

type Assignment struct {
	ID               int       `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	DueDate          time.Time `json:"dueDate"`
	PerfectSolution  string    `json:"perfectSolution"`
	CreatedAt        time.Time `json:"createdAt"`
	CreatedBy        string    `json:"createdBy"`
	MaxPoints        int       `json:"maxPoints"`
	SubmissionsCount int       `json:"submissionsCount"`
	ReviewedCount    int       `json:"reviewedCount"`
}

type Submission struct {
	ID           int              `json:"id"`
	AssignmentID int              `json:"assignmentId"`
	StudentID    int              `json:"studentId"`
	StudentEmail string           `json:"studentEmail"`
	StudentName  string           `json:"studentName"`
	SubmittedAt  time.Time        `json:"submittedAt"`
	Solution     string           `json:"solution"`
	SolutionFile string           `json:"solutionFile"`
	FileKey      string           `json:"fileKey,omitempty"` // object key of the uploaded notebook
	Notes        string           `json:"notes"`
	Status       string           `json:"status"`
	Score        *float64         `json:"score"`
	AIConfidence *float64         `json:"aiConfidence"`
	Feedback     *string          `json:"feedback"`
	ReviewedAt   *time.Time       `json:"reviewedAt,omitempty"`
	Analysis     *analysis.Result `json:"analysis,omitempty"`
}

func (s *Submission) IsReviewed() bool { return s.Status == StatusReviewed }

// IsCompleted reports whether the submission got a review or a score.
func (s *Submission) IsCompleted() bool { return s.IsReviewed() || s.Score != nil }

// NeedsReview reports whether a teacher still has to look at the submission. Blank feedback counts as none.
func (s *Submission) NeedsReview() bool {
	return s.Status == StatusPending || s.Feedback == nil || strings.TrimSpace(*s.Feedback) == "" || s.Score == nil
}

// NewAssignment contains the information a teacher provides to create an Assignment.
type NewAssignment struct {
	Title           string    `json:"title" validate:"required"`
	Description     string    `json:"description"`
	DueDate         time.Time `json:"dueDate" validate:"required"`
	PerfectSolution string    `json:"perfectSolution"`
	MaxPoints       int       `json:"maxPoints" validate:"omitempty,min=1,max=100"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.PerfectSolution = core.CleanString(na.PerfectSolution)
	return validate.Struct(na)
}

// FileUpload is an uploaded solution notebook.
type FileUpload struct {
	Name        string
	ContentType string
	Content     []byte
}

// NewSubmission contains the information a student provides to submit a solution.
// The uploaded file content, when present, is kept as the solution text.
type NewSubmission struct {
	AssignmentID int         `json:"assignmentId" form:"assignmentId" validate:"required"`
	Solution     string      `json:"solution" form:"solution" validate:"required_without=File"`
	Notes        string      `json:"notes" form:"notes"`
	File         *FileUpload `json:"-" form:"-"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.Notes = core.CleanString(ns.Notes)
	if ns.File != nil && len(ns.File.Content) == 0 {
		ns.File = nil
	}
	return validate.Struct(ns)
}

// Review is a teacher's grading of a submission.
type Review struct {
	Score    *float64 `json:"score" validate:"required,min=0"`
	Feedback string   `json:"feedback"`
}

func (r *Review) Validate(validate *validator.Validate) error {
	r.Feedback = core.CleanString(r.Feedback)
	return validate.Struct(r)
}

// SubmissionFilter narrows ListSubmissions. Zero fields are ignored.
type SubmissionFilter struct {
	AssignmentID int    `query:"assignmentId"`
	StudentEmail string `query:"-"`
	Status       string `query:"status"`
}

func (f SubmissionFilter) matches(s Submission) bool {
	if f.AssignmentID != 0 && s.AssignmentID != f.AssignmentID {
		return false
	}
	if f.StudentEmail != "" && s.StudentEmail != f.StudentEmail {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

type TeacherStats struct {
	TotalAssignments int     `json:"totalAssignments"`
	PendingReviews   int     `json:"pendingReviews"`
	ActiveStudents   int     `json:"activeStudents"`
	AvgScore         float64 `json:"avgScore"`
}

type StudentStats struct {
	TotalAssignments int     `json:"totalAssignments"`
	Completed        int     `json:"completed"`
	InProgress       int     `json:"inProgress"`
	AvgScore         float64 `json:"avgScore"`
	Upcoming         int     `json:"upcoming"`
}

// SyncResult is the reconciled store content.
type SyncResult struct {
	Assignments          []Assignment `json:"assignments"`
	Submissions          []Submission `json:"submissions"`
	MigratedKeys         []string     `json:"migratedKeys,omitempty"`
	AssignmentsSeeded    bool         `json:"assignmentsSeeded"`
	SubmissionsSeeded    bool         `json:"submissionsSeeded"`
	AssignmentsRecovered bool         `json:"assignmentsRecovered"`
	SubmissionsRecovered bool         `json:"submissionsRecovered"`
}

// TestDataResult tells what EnsureTestData wrote.
type TestDataResult struct {
	AssignmentCreated bool `json:"assignmentCreated"`
	SubmissionCreated bool `json:"submissionCreated"`
}
