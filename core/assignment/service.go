package assignment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/analysis"
	"github.com/trezcool/proofmate/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrAssignmentNotFound = errors.New("Assignment not found")
	ErrSubmissionNotFound = errors.New("Submission not found")
)

type Service interface {
	// Sync reconciles the stored collections for usr, seeding demo data when they are missing or unreadable.
	// Without a user only the legacy keys are migrated.
	Sync(ctx context.Context, usr *user.User) (SyncResult, error)
	ForceReset(ctx context.Context) (SyncResult, error)
	EnsureTestData(ctx context.Context) (TestDataResult, error)

	CreateAssignment(ctx context.Context, creator *user.User, data NewAssignment) (Assignment, error)
	ListAssignments(ctx context.Context) ([]Assignment, error)
	GetAssignment(ctx context.Context, id int) (Assignment, error)
	DeleteAssignment(ctx context.Context, id int) error
	AvailableAssignments(ctx context.Context, student user.User) ([]Assignment, error)

	Submit(ctx context.Context, student user.User, data NewSubmission) (Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
	GetSubmission(ctx context.Context, id int) (Submission, error)
	PresignSolutionFile(ctx context.Context, sub Submission, expiry time.Duration) (string, error)
	OpenSolutionFile(ctx context.Context, sub Submission) (io.ReadCloser, error)
	Review(ctx context.Context, id int, data Review) (Submission, error)
	Analyze(ctx context.Context, id int) (analysis.Result, error)

	TeacherStats(ctx context.Context) (TeacherStats, error)
	StudentStats(ctx context.Context, student user.User) (StudentStats, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

type service struct {
	mu       sync.Mutex // serializes read-modify-write cycles on the store
	store    store
	analyzer analysis.Analyzer
	files    core.FileStore
	logger   core.Logger
}

var _ Service = (*service)(nil)

func NewService(kv core.KVStore, analyzer analysis.Analyzer, files core.FileStore, logger core.Logger) Service {
	return &service{
		store:    store{kv: kv},
		analyzer: analyzer,
		files:    files,
		logger:   logger,
	}
}

func (svc *service) now() time.Time { return NowFunc().UTC() }

func (svc *service) Sync(ctx context.Context, usr *user.User) (SyncResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	migrated, err := svc.store.migrateLegacy(ctx)
	if err != nil {
		return SyncResult{}, errors.Wrap(err, "migrating legacy keys")
	}
	for _, key := range migrated {
		svc.logger.Info(fmt.Sprintf("migrated legacy store key %q", key))
	}
	res := SyncResult{MigratedKeys: migrated}
	if usr == nil {
		return res, nil
	}

	now := svc.now()
	res.AssignmentsSeeded, res.AssignmentsRecovered, err = svc.syncCollection(ctx, KeyAssignments, &res.Assignments, func() {
		res.Assignments = DemoAssignments(now)
	})
	if err != nil {
		return SyncResult{}, err
	}
	res.SubmissionsSeeded, res.SubmissionsRecovered, err = svc.syncCollection(ctx, KeySubmissions, &res.Submissions, func() {
		res.Submissions = DemoSubmissions(now)
	})
	if err != nil {
		return SyncResult{}, err
	}
	if res.Assignments == nil {
		res.Assignments = make([]Assignment, 0)
	}
	if res.Submissions == nil {
		res.Submissions = make([]Submission, 0)
	}
	return res, nil
}

// syncCollection loads key into v; when the value is missing or corrupt, seed fills v which is then saved.
func (svc *service) syncCollection(ctx context.Context, key string, v interface{}, seed func()) (seeded, recovered bool, err error) {
	found, err := svc.store.load(ctx, key, v)
	switch {
	case isCorrupt(err):
		svc.logger.Warn(fmt.Sprintf("stored %s are unreadable, regenerating demo data", key), err)
		recovered = true
	case err != nil:
		return false, false, err
	case found:
		return false, false, nil
	}

	seed()
	if err = svc.store.save(ctx, key, v); err != nil {
		return false, false, err
	}
	return true, recovered, nil
}

func (svc *service) ForceReset(ctx context.Context) (SyncResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := svc.store.kv.Delete(ctx, allKeys...); err != nil {
		return SyncResult{}, errors.Wrap(err, "clearing store")
	}

	now := svc.now()
	res := SyncResult{
		Assignments:       DemoAssignments(now),
		Submissions:       DemoSubmissions(now),
		AssignmentsSeeded: true,
		SubmissionsSeeded: true,
	}
	if err := svc.store.save(ctx, KeyAssignments, res.Assignments); err != nil {
		return SyncResult{}, err
	}
	if err := svc.store.save(ctx, KeySubmissions, res.Submissions); err != nil {
		return SyncResult{}, err
	}
	svc.logger.Info(fmt.Sprintf("store reset with %d assignments and %d submissions", len(res.Assignments), len(res.Submissions)))
	return res, nil
}

// EnsureTestData writes a test assignment when there is none, or a test submission when there are
// assignments but no submissions. Both decisions are taken on the content found on entry.
func (svc *service) EnsureTestData(ctx context.Context) (TestDataResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	var res TestDataResult
	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return res, err
	}
	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return res, err
	}
	now := svc.now()

	if len(asgs) == 0 {
		if err = svc.store.save(ctx, KeyAssignments, []Assignment{testAssignment(now)}); err != nil {
			return res, err
		}
		res.AssignmentCreated = true
	}

	if len(subs) == 0 && len(asgs) > 0 {
		if err = svc.store.save(ctx, KeySubmissions, []Submission{testSubmission(now, asgs[0].ID)}); err != nil {
			return res, err
		}
		asgs[0].SubmissionsCount = 1
		if err = svc.store.save(ctx, KeyAssignments, asgs); err != nil {
			return res, err
		}
		res.SubmissionCreated = true
	}
	return res, nil
}

func (svc *service) CreateAssignment(ctx context.Context, creator *user.User, data NewAssignment) (Assignment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return Assignment{}, err
	}

	asg := Assignment{
		ID:              nextAssignmentID(asgs),
		Title:           data.Title,
		Description:     data.Description,
		DueDate:         data.DueDate.UTC(),
		PerfectSolution: data.PerfectSolution,
		CreatedAt:       svc.now(),
		CreatedBy:       DefaultCreator,
		MaxPoints:       data.MaxPoints,
	}
	if creator != nil && creator.Email != "" {
		asg.CreatedBy = creator.Email
	}
	if asg.MaxPoints == 0 {
		asg.MaxPoints = DefaultMaxPoints
	}

	if err = svc.store.save(ctx, KeyAssignments, append(asgs, asg)); err != nil {
		return Assignment{}, err
	}
	return asg, nil
}

func (svc *service) ListAssignments(ctx context.Context) ([]Assignment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.store.assignments(ctx)
}

func (svc *service) GetAssignment(ctx context.Context, id int) (Assignment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return Assignment{}, err
	}
	if i := findAssignment(asgs, id); i >= 0 {
		return asgs[i], nil
	}
	return Assignment{}, ErrAssignmentNotFound
}

// DeleteAssignment removes the assignment with its submissions and their uploaded files.
func (svc *service) DeleteAssignment(ctx context.Context, id int) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return err
	}
	i := findAssignment(asgs, id)
	if i < 0 {
		return ErrAssignmentNotFound
	}
	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return err
	}

	kept := make([]Submission, 0, len(subs))
	var removed []Submission
	for _, s := range subs {
		if s.AssignmentID == id {
			removed = append(removed, s)
		} else {
			kept = append(kept, s)
		}
	}

	if len(removed) > 0 {
		if err = svc.store.save(ctx, KeySubmissions, kept); err != nil {
			return err
		}
	}
	if err = svc.store.save(ctx, KeyAssignments, append(asgs[:i], asgs[i+1:]...)); err != nil {
		return err
	}

	for _, s := range removed {
		if s.FileKey == "" {
			continue
		}
		if err = svc.files.Delete(ctx, s.FileKey); err != nil {
			svc.logger.Warn(fmt.Sprintf("deleting solution file %s", s.FileKey), err)
		}
	}
	return nil
}

// AvailableAssignments returns the assignments student has not submitted to yet.
func (svc *service) AvailableAssignments(ctx context.Context, student user.User) ([]Assignment, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return nil, err
	}
	return availableAssignments(asgs, studentSubmissions(subs, student)), nil
}

func (svc *service) Submit(ctx context.Context, student user.User, data NewSubmission) (Submission, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return Submission{}, err
	}
	ai := findAssignment(asgs, data.AssignmentID)
	if ai < 0 {
		return Submission{}, ErrAssignmentNotFound
	}
	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return Submission{}, err
	}

	sub := Submission{
		ID:           nextSubmissionID(subs),
		AssignmentID: data.AssignmentID,
		StudentID:    student.ID,
		StudentEmail: student.Email,
		StudentName:  student.Name,
		SubmittedAt:  svc.now(),
		Solution:     data.Solution,
		SolutionFile: DefaultSolutionFile,
		Notes:        data.Notes,
		Status:       StatusPending,
	}
	if sub.Notes == "" {
		sub.Notes = DefaultSubmitNotes
	}

	if f := data.File; f != nil {
		sub.FileKey = fmt.Sprintf("submissions/%d/%s%s", data.AssignmentID, uuid.NewString(), path.Ext(f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/x-ipynb+json"
		}
		if err = svc.files.Put(ctx, sub.FileKey, ct, bytes.NewReader(f.Content), int64(len(f.Content))); err != nil {
			return Submission{}, errors.Wrap(err, "storing solution file")
		}
		if f.Name != "" {
			sub.SolutionFile = path.Base(f.Name)
		}
		sub.Solution = string(f.Content)
	}

	asgs[ai].SubmissionsCount++
	if err = svc.store.save(ctx, KeySubmissions, append(subs, sub)); err != nil {
		svc.dropFile(ctx, sub.FileKey)
		return Submission{}, err
	}
	if err = svc.store.save(ctx, KeyAssignments, asgs); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (svc *service) dropFile(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := svc.files.Delete(ctx, key); err != nil {
		svc.logger.Warn(fmt.Sprintf("deleting orphan solution file %s", key), err)
	}
}

func (svc *service) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]Submission, 0, len(subs))
	for _, s := range subs {
		if filter.matches(s) {
			matched = append(matched, s)
		}
	}
	return matched, nil
}

func (svc *service) GetSubmission(ctx context.Context, id int) (Submission, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return Submission{}, err
	}
	if i := findSubmission(subs, id); i >= 0 {
		return subs[i], nil
	}
	return Submission{}, ErrSubmissionNotFound
}

func (svc *service) PresignSolutionFile(ctx context.Context, sub Submission, expiry time.Duration) (string, error) {
	if sub.FileKey == "" {
		return "", core.ErrFileNotFound
	}
	return svc.files.PresignGet(ctx, sub.FileKey, expiry)
}

// OpenSolutionFile returns the uploaded notebook, or the solution text when nothing was uploaded.
func (svc *service) OpenSolutionFile(ctx context.Context, sub Submission) (io.ReadCloser, error) {
	if sub.FileKey == "" {
		return io.NopCloser(bytes.NewReader([]byte(sub.Solution))), nil
	}
	return svc.files.Get(ctx, sub.FileKey)
}

// Review grades a submission. Without feedback, the generic feedback for the score is used.
func (svc *service) Review(ctx context.Context, id int, data Review) (Submission, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, subs, si, ai, err := svc.loadForReview(ctx, id)
	if err != nil {
		return Submission{}, err
	}

	score := *data.Score
	maxPoints := asgs[ai].MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if score < 0 || score > float64(maxPoints) {
		msg := fmt.Sprintf("score must be between 0 and %d", maxPoints)
		return Submission{}, core.NewValidationError(nil, core.FieldError{Field: "score", Error: msg})
	}
	feedback := data.Feedback
	if feedback == "" {
		feedback = analysis.Feedback(score / float64(maxPoints) * 10)
	}

	sub := &subs[si]
	firstReview := !sub.IsReviewed()
	reviewedAt := svc.now()
	sub.Status = StatusReviewed
	sub.Score = &score
	sub.Feedback = &feedback
	sub.ReviewedAt = &reviewedAt

	if err = svc.saveReview(ctx, asgs, subs, ai, firstReview); err != nil {
		return Submission{}, err
	}
	return *sub, nil
}

// Analyze runs the analyzer on a submission and stores the result as its review.
// A submission analyzed before gets its stored analysis back.
func (svc *service) Analyze(ctx context.Context, id int) (analysis.Result, error) {
	svc.mu.Lock()
	asgs, subs, si, ai, err := svc.loadForReview(ctx, id)
	svc.mu.Unlock()
	if err != nil {
		return analysis.Result{}, err
	}
	if subs[si].Analysis != nil {
		return *subs[si].Analysis, nil
	}

	// the analyzer may be remote: don't hold the lock while it runs
	res, err := svc.analyzer.Analyze(ctx, analysis.Request{
		TaskID:            asgs[ai].ID,
		Solution:          subs[si].Solution,
		SolutionFile:      subs[si].SolutionFile,
		ReferenceSolution: asgs[ai].PerfectSolution,
	})
	if err != nil {
		return analysis.Result{}, errors.Wrap(err, "analyzing submission")
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	// reload: the store may have changed meanwhile
	asgs, subs, si, ai, err = svc.loadForReview(ctx, id)
	if err != nil {
		return analysis.Result{}, err
	}
	sub := &subs[si]
	if sub.Analysis != nil {
		return *sub.Analysis, nil
	}

	firstReview := !sub.IsReviewed()
	grade, confidence, summary := res.Grade, res.ConfidenceScore, res.ErrorSummary
	reviewedAt := svc.now()
	sub.Status = StatusReviewed
	sub.Score = &grade
	sub.AIConfidence = &confidence
	sub.Feedback = &summary
	sub.ReviewedAt = &reviewedAt
	sub.Analysis = &res

	if err = svc.saveReview(ctx, asgs, subs, ai, firstReview); err != nil {
		return analysis.Result{}, err
	}
	return res, nil
}

// loadForReview loads the store and locates submission id and its assignment.
func (svc *service) loadForReview(ctx context.Context, id int) (asgs []Assignment, subs []Submission, si, ai int, err error) {
	if subs, err = svc.store.submissions(ctx); err != nil {
		return
	}
	if si = findSubmission(subs, id); si < 0 {
		err = ErrSubmissionNotFound
		return
	}
	if asgs, err = svc.store.assignments(ctx); err != nil {
		return
	}
	if ai = findAssignment(asgs, subs[si].AssignmentID); ai < 0 {
		err = ErrAssignmentNotFound
	}
	return
}

func (svc *service) saveReview(ctx context.Context, asgs []Assignment, subs []Submission, ai int, firstReview bool) error {
	if err := svc.store.save(ctx, KeySubmissions, subs); err != nil {
		return err
	}
	if !firstReview {
		return nil
	}
	asgs[ai].ReviewedCount++
	return svc.store.save(ctx, KeyAssignments, asgs)
}

func (svc *service) TeacherStats(ctx context.Context) (TeacherStats, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return TeacherStats{}, err
	}
	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return TeacherStats{}, err
	}
	return teacherStats(asgs, subs), nil
}

func (svc *service) StudentStats(ctx context.Context, student user.User) (StudentStats, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	asgs, err := svc.store.assignments(ctx)
	if err != nil {
		return StudentStats{}, err
	}
	subs, err := svc.store.submissions(ctx)
	if err != nil {
		return StudentStats{}, err
	}
	return studentStats(asgs, studentSubmissions(subs, student)), nil
}

func (svc *service) ExportCSV(ctx context.Context, w io.Writer) error {
	svc.mu.Lock()
	asgs, err := svc.store.assignments(ctx)
	var subs []Submission
	if err == nil {
		subs, err = svc.store.submissions(ctx)
	}
	svc.mu.Unlock()
	if err != nil {
		return err
	}
	return writeCSV(w, asgs, subs)
}

func findAssignment(asgs []Assignment, id int) int {
	for i, a := range asgs {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func findSubmission(subs []Submission, id int) int {
	for i, s := range subs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func nextAssignmentID(asgs []Assignment) int {
	var maxID int
	for _, a := range asgs {
		if a.ID > maxID {
			maxID = a.ID
		}
	}
	return maxID + 1
}

func nextSubmissionID(subs []Submission) int {
	var maxID int
	for _, s := range subs {
		if s.ID > maxID {
			maxID = s.ID
		}
	}
	return maxID + 1
}
