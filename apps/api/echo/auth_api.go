package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

type authApi struct {
	conf     *core.Config
	svc      user.Service
	validate *validator.Validate
}

func registerAuthAPI(g *echo.Group, auth, limit echo.MiddlewareFunc, api authApi) {
	ag := g.Group("/auth")

	ag.POST("/register", api.register)
	ag.POST("/login", api.login, limit)
	ag.GET("/logout", api.logout)
	ag.POST("/forgotpassword", api.forgotPassword, limit)
	ag.PUT("/resetpassword/:token", api.resetPassword, limit)
	ag.GET("/verifyemail/:token", api.verifyEmail)

	// authed endpoints
	ag.GET("/me", api.me, auth)
	ag.POST("/token-refresh", api.refreshToken, auth)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data user.RegisterUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RegisterUser")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return sendTokenResponse(ctx, api.conf, usr)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	data.Clean()
	if data.Email == "" || data.Password == "" {
		return errMissingCredentials
	}

	reqCtx := ctx.Request().Context()
	usr, err := api.svc.GetByEmail(reqCtx, data.Email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errInvalidCredentials
		}
		return errors.Wrap(err, "finding user by email")
	}
	if data.Role != "" && data.Role != usr.Role {
		msg := fmt.Sprintf("This account is registered as a %s. Please select the correct role.", usr.Role)
		return echo.NewHTTPError(http.StatusUnauthorized, msg)
	}
	if err = usr.CheckPassword(data.Password); err != nil {
		return errInvalidCredentials
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}

	if usr, err = api.svc.SetLastLogin(reqCtx, usr); err != nil {
		return errors.Wrap(err, "setting lastLogin")
	}
	return sendTokenResponse(ctx, api.conf, usr)
}

func (api *authApi) logout(ctx echo.Context) error {
	ctx.SetCookie(&http.Cookie{
		Name:     tokenCookie,
		Value:    "none",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
	})
	return ctx.JSON(http.StatusOK, okData(emptyData))
}

func (api *authApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, okData(usr))
}

func (api *authApi) forgotPassword(ctx echo.Context) error {
	var data ForgotPasswordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ForgotPasswordRequest")
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errNoUserWithEmail
		}
		return errors.Wrap(err, "requesting password reset")
	}
	return ctx.JSON(http.StatusOK, okData("Email sent"))
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data user.PasswordHolder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordHolder")
	}
	token := ctx.Param("token")
	usr, err := api.svc.CheckResetToken(ctx.Request().Context(), token)
	if err != nil {
		return errors.Wrap(err, "checking reset token")
	}
	if err = data.Validate(usr, api.validate); err != nil {
		return err
	}

	usr, err = api.svc.ResetPassword(ctx.Request().Context(), token, data.Password)
	if err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return sendTokenResponse(ctx, api.conf, usr)
}

func (api *authApi) verifyEmail(ctx echo.Context) error {
	if _, err := api.svc.VerifyEmail(ctx.Request().Context(), ctx.Param("token")); err != nil {
		return errors.Wrap(err, "verifying email")
	}
	return ctx.JSON(http.StatusOK, messageResponse{Success: true, Message: "Email verified successfully"})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenRefreshResponse{Success: true, Token: token})
}

type (
	LoginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	ForgotPasswordRequest struct {
		Email string `json:"email"`
	}

	TokenRefreshResponse struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
)

func (lr *LoginRequest) Clean() {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	lr.Role = core.CleanString(lr.Role, true /* lower */)
}
