package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

var (
	errNoAccessToUser     = echo.NewHTTPError(http.StatusForbidden, "Not authorized to access this user")
	errNoUpdateOfUser     = echo.NewHTTPError(http.StatusForbidden, "Not authorized to update this user")
	errNoDeleteOfUser     = echo.NewHTTPError(http.StatusForbidden, "Not authorized to delete this user")
	errTeacherCreate      = echo.NewHTTPError(http.StatusForbidden, "Teachers can only create student accounts")
	errTeacherChangeRoles = echo.NewHTTPError(http.StatusForbidden, "Teachers cannot change user roles")
	errSelfDelete         = echo.NewHTTPError(http.StatusForbidden, "You cannot delete your own account")
)

var errInvalidFilters = errors.New("Invalid query filters")

type userApi struct {
	svc      user.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, auth echo.MiddlewareFunc, api userApi) {
	ug := g.Group("/users", auth, roleMiddleware(user.RoleAdmin, user.RoleTeacher))

	ug.GET("", api.query)
	ug.POST("", api.create)

	// detail endpoints
	dg := ug.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	ctxUsr := ctx.Get(contextUserKey).(user.User)

	filter := new(user.QueryFilter)
	if ctxUsr.IsAdmin() {
		if err := ctx.Bind(filter); err != nil {
			return core.NewValidationError(errInvalidFilters)
		}
		var err error
		if filter.CreatedFrom, err = bindDateParam(ctx, "created_from", false); err != nil {
			return err
		}
		if filter.CreatedTo, err = bindDateParam(ctx, "created_to", true); err != nil {
			return err
		}
		filter.Clean()
	} else {
		// teachers only see students
		filter.Roles = []string{user.RoleStudent}
	}

	users, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, okList(len(users), users))
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}

	ctxUsr := ctx.Get(contextUserKey).(user.User)
	if ctxUsr.IsTeacher() {
		if role := core.CleanString(data.Role, true /* lower */); !(role == "" || role == user.RoleStudent) {
			return errTeacherCreate
		}
		data.IsActive = nil
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, okData(usr))
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr := ctx.Get("object").(user.User)
	if !canManage(ctx, usr) {
		return errNoAccessToUser
	}
	return ctx.JSON(http.StatusOK, okData(usr))
}

func (api *userApi) update(ctx echo.Context) error {
	usr := ctx.Get("object").(user.User)
	if !canManage(ctx, usr) {
		return errNoUpdateOfUser
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr := ctx.Get(contextUserKey).(user.User)
	if ctxUsr.IsTeacher() {
		if role := core.CleanString(data.Role, true /* lower */); !(role == "" || role == user.RoleStudent) {
			return errTeacherChangeRoles
		}
		// account status is managed by admins
		data.IsActive = nil
		data.EmailVerified = nil
	}

	if err := data.Validate(usr, api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, okData(usr))
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr := ctx.Get("object").(user.User)
	if !canManage(ctx, usr) {
		return errNoDeleteOfUser
	}

	ctxUsr := ctx.Get(contextUserKey).(user.User)
	if usr.ID == ctxUsr.ID {
		return errSelfDelete
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.JSON(http.StatusOK, okData(emptyData))
}

// objectMiddleware loads the user targeted by the `:id` path param as "object".
func (api *userApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id", userNotFound)
		if err != nil {
			return err
		}
		usr, err := api.svc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return userNotFound(ctx.Param("id"))
			}
			return errors.Wrap(err, "finding user by ID")
		}
		ctx.Set("object", usr)
		return next(ctx)
	}
}

// canManage reports whether the context user may act on usr: admins on anybody, teachers on students.
func canManage(ctx echo.Context, usr user.User) bool {
	ctxUsr := ctx.Get(contextUserKey).(user.User)
	return ctxUsr.IsAdmin() || (ctxUsr.IsTeacher() && usr.IsStudent())
}
