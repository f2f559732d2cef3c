package assignment

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

var csvHeaders = []string{
	"ID", "Title", "Description", "Due Date", "Created At", "Created By",
	"Max Points", "Submissions Count", "Reviewed Count", "Avg Score",
}

func studentSubmissions(subs []Submission, student user.User) []Submission {
	own := make([]Submission, 0)
	for _, s := range subs {
		if s.StudentEmail == student.Email {
			own = append(own, s)
		}
	}
	return own
}

func availableAssignments(asgs []Assignment, own []Submission) []Assignment {
	submitted := make(map[int]bool, len(own))
	for _, s := range own {
		submitted[s.AssignmentID] = true
	}
	avail := make([]Assignment, 0, len(asgs))
	for _, a := range asgs {
		if !submitted[a.ID] {
			avail = append(avail, a)
		}
	}
	return avail
}

// avgScore averages the scored submissions, rounded to one decimal. 0 when none is scored.
func avgScore(subs []Submission) float64 {
	var (
		sum   float64
		count int
	)
	for _, s := range subs {
		if s.Score != nil {
			sum += *s.Score
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return core.Round(sum/float64(count), 1)
}

func teacherStats(asgs []Assignment, subs []Submission) TeacherStats {
	stats := TeacherStats{TotalAssignments: len(asgs), AvgScore: avgScore(subs)}

	students := make(map[string]bool)
	for _, s := range subs {
		if s.NeedsReview() {
			stats.PendingReviews++
		}
		switch {
		case s.StudentEmail != "":
			students["email:"+s.StudentEmail] = true
		case s.StudentID != 0:
			students["id:"+strconv.Itoa(s.StudentID)] = true
		case s.StudentName != "":
			students["name:"+s.StudentName] = true
		}
	}
	stats.ActiveStudents = len(students)
	return stats
}

func studentStats(asgs []Assignment, own []Submission) StudentStats {
	avail := availableAssignments(asgs, own)
	stats := StudentStats{
		TotalAssignments: len(asgs),
		AvgScore:         avgScore(own),
		Upcoming:         len(avail),
		InProgress:       len(avail),
	}
	for _, s := range own {
		if s.IsCompleted() {
			stats.Completed++
		} else {
			stats.InProgress++
		}
	}
	return stats
}

// writeCSV writes one row per assignment; nothing at all when there are no assignments.
func writeCSV(w io.Writer, asgs []Assignment, subs []Submission) error {
	if len(asgs) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		return errors.Wrap(err, "writing csv headers")
	}
	for _, a := range asgs {
		var (
			reviewed int
			sum      float64
		)
		for _, s := range subs {
			if s.AssignmentID == a.ID && s.IsReviewed() {
				reviewed++
				if s.Score != nil {
					sum += *s.Score
				}
			}
		}
		avg := "N/A"
		if reviewed > 0 {
			avg = fmt.Sprintf("%.2f", sum/float64(reviewed))
		}

		row := []string{
			strconv.Itoa(a.ID),
			a.Title,
			a.Description,
			a.DueDate.UTC().Format(time.RFC3339),
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.CreatedBy,
			strconv.Itoa(a.MaxPoints),
			strconv.Itoa(a.SubmissionsCount),
			strconv.Itoa(reviewed),
			avg,
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrapf(err, "writing csv row %d", a.ID)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
