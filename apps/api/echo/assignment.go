package echoapi

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/assignment"
	"github.com/trezcool/proofmate/core/user"
)

const maxUploadSize = 10 << 20 // 10 MiB

var (
	errNoAssignmentsToExport = echo.NewHTTPError(http.StatusNotFound, "No assignments to export")
	errNoAccessToSubmission  = echo.NewHTTPError(http.StatusForbidden, "Not authorized to access this submission")
	errFileTooLarge          = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Solution file is too large")
)

type assignmentApi struct {
	conf     *core.Config
	svc      assignment.Service
	validate *validator.Validate
}

func registerAssignmentAPI(g *echo.Group, auth echo.MiddlewareFunc, api assignmentApi) {
	staff := roleMiddleware(user.RoleTeacher, user.RoleAdmin)
	student := roleMiddleware(user.RoleStudent)

	ag := g.Group("/assignments", auth)
	ag.GET("", api.list)
	ag.POST("", api.create, staff)
	ag.GET("/available", api.available, student)
	ag.GET("/export", api.exportCSV, staff)
	ag.GET("/:id", api.retrieve)
	ag.DELETE("/:id", api.destroy, staff)

	sg := g.Group("/submissions", auth)
	sg.GET("", api.listSubmissions)
	sg.POST("", api.submit, student)
	sg.GET("/:id", api.retrieveSubmission)
	sg.GET("/:id/file", api.downloadSolution)
	sg.PUT("/:id/review", api.review, staff)
	sg.POST("/:id/analyze", api.analyze, staff)
}

// Assignments

func (api *assignmentApi) list(ctx echo.Context) error {
	asgs, err := api.svc.ListAssignments(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	return ctx.JSON(http.StatusOK, okList(len(asgs), asgs))
}

func (api *assignmentApi) create(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	creator := ctx.Get(contextUserKey).(user.User)
	asg, err := api.svc.CreateAssignment(ctx.Request().Context(), &creator, data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, okData(asg))
}

func (api *assignmentApi) available(ctx echo.Context) error {
	student := ctx.Get(contextUserKey).(user.User)
	asgs, err := api.svc.AvailableAssignments(ctx.Request().Context(), student)
	if err != nil {
		return errors.Wrap(err, "listing available assignments")
	}
	return ctx.JSON(http.StatusOK, okList(len(asgs), asgs))
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	id, err := paramID(ctx, "id", assignmentNotFound)
	if err != nil {
		return err
	}
	asg, err := api.svc.GetAssignment(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	return ctx.JSON(http.StatusOK, okData(asg))
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	id, err := paramID(ctx, "id", assignmentNotFound)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAssignment(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.JSON(http.StatusOK, okData(emptyData))
}

func (api *assignmentApi) exportCSV(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	asgs, err := api.svc.ListAssignments(reqCtx)
	if err != nil {
		return errors.Wrap(err, "listing assignments")
	}
	if len(asgs) == 0 {
		return errNoAssignmentsToExport
	}

	filename := fmt.Sprintf("assignments_export_%s.csv", time.Now().UTC().Format("2006-01-02"))
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	resp.WriteHeader(http.StatusOK)
	return errors.Wrap(api.svc.ExportCSV(reqCtx, resp), "exporting assignments")
}

// Submissions

func (api *assignmentApi) listSubmissions(ctx echo.Context) error {
	var filter assignment.SubmissionFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to SubmissionFilter")
	}

	// students only see their own submissions
	if usr := ctx.Get(contextUserKey).(user.User); usr.IsStudent() {
		filter.StudentEmail = usr.Email
	}

	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	return ctx.JSON(http.StatusOK, okList(len(subs), subs))
}

func (api *assignmentApi) submit(ctx echo.Context) error {
	data, err := api.bindSubmission(ctx)
	if err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	student := ctx.Get(contextUserKey).(user.User)
	sub, err := api.svc.Submit(ctx.Request().Context(), student, data)
	if err != nil {
		return errors.Wrap(err, "submitting solution")
	}
	return ctx.JSON(http.StatusCreated, okData(sub))
}

// bindSubmission reads a JSON body or a multipart form with an optional `file` notebook.
func (api *assignmentApi) bindSubmission(ctx echo.Context) (assignment.NewSubmission, error) {
	var data assignment.NewSubmission
	if !strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if err := ctx.Bind(&data); err != nil {
			return data, errors.Wrap(err, "binding to NewSubmission")
		}
		return data, nil
	}

	data.AssignmentID, _ = strconv.Atoi(ctx.FormValue("assignmentId"))
	data.Solution = ctx.FormValue("solution")
	data.Notes = ctx.FormValue("notes")

	fh, err := ctx.FormFile("file")
	if err == http.ErrMissingFile {
		return data, nil
	}
	if err != nil {
		return data, errors.Wrap(err, "reading uploaded file")
	}
	if fh.Size > maxUploadSize {
		return data, errFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return data, errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		return data, errors.Wrap(err, "reading uploaded file")
	}
	data.File = &assignment.FileUpload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Content:     content,
	}
	return data, nil
}

// getSubmission loads the `:id` submission, checking that students only access their own.
func (api *assignmentApi) getSubmission(ctx echo.Context) (assignment.Submission, error) {
	id, err := paramID(ctx, "id", submissionNotFound)
	if err != nil {
		return assignment.Submission{}, err
	}
	sub, err := api.svc.GetSubmission(ctx.Request().Context(), id)
	if err != nil {
		return assignment.Submission{}, errors.Wrap(err, "getting submission")
	}
	if usr := ctx.Get(contextUserKey).(user.User); usr.IsStudent() && sub.StudentEmail != usr.Email {
		return assignment.Submission{}, errNoAccessToSubmission
	}
	return sub, nil
}

func (api *assignmentApi) retrieveSubmission(ctx echo.Context) error {
	sub, err := api.getSubmission(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, okData(sub))
}

// downloadSolution redirects to a presigned URL of the uploaded notebook.
// Stores unable to presign, and text submissions, get the content streamed.
func (api *assignmentApi) downloadSolution(ctx echo.Context) error {
	sub, err := api.getSubmission(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	url, err := api.svc.PresignSolutionFile(reqCtx, sub, api.conf.Files.PresignExpiry)
	if err == nil {
		return ctx.Redirect(http.StatusTemporaryRedirect, url)
	}
	if cause := errors.Cause(err); !(cause == core.ErrPresignNotSupported || cause == core.ErrFileNotFound) {
		return errors.Wrap(err, "presigning solution file")
	}

	rc, err := api.svc.OpenSolutionFile(reqCtx, sub)
	if err != nil {
		if errors.Cause(err) == core.ErrFileNotFound {
			return errFileNotFound
		}
		return errors.Wrap(err, "opening solution file")
	}
	defer rc.Close()

	filename := sub.SolutionFile
	if filename == "" {
		filename = assignment.DefaultSolutionFile
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	return ctx.Stream(http.StatusOK, "application/x-ipynb+json", rc)
}

func (api *assignmentApi) review(ctx echo.Context) error {
	id, err := paramID(ctx, "id", submissionNotFound)
	if err != nil {
		return err
	}
	var data assignment.Review
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Review(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "reviewing submission")
	}
	return ctx.JSON(http.StatusOK, okData(sub))
}

func (api *assignmentApi) analyze(ctx echo.Context) error {
	id, err := paramID(ctx, "id", submissionNotFound)
	if err != nil {
		return err
	}
	res, err := api.svc.Analyze(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "analyzing submission")
	}
	return ctx.JSON(http.StatusOK, okData(res))
}
