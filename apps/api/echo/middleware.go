package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
	"github.com/trezcool/proofmate/services/ratelimit"
)

// authMiddleware validates the JWT sent as a Bearer token or in the token cookie,
// then loads the authenticated user in the context.
func authMiddleware(conf *core.Config, svc user.Service) echo.MiddlewareFunc {
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		loadUser := func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			return next(ctx)
		}
		h := jwt(loadUser)

		return func(ctx echo.Context) error {
			req := ctx.Request()
			if req.Header.Get(echo.HeaderAuthorization) == "" {
				if cookie, err := ctx.Cookie(tokenCookie); err == nil && cookie.Value != "" && cookie.Value != "none" {
					req.Header.Set(echo.HeaderAuthorization, middleware.DefaultJWTConfig.AuthScheme+" "+cookie.Value)
				}
			}
			return h(ctx)
		}
	}
}

// roleMiddleware only lets the users having one of roles through. It must run after authMiddleware.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, ok := ctx.Get(contextUserKey).(user.User)
			if !ok {
				return errNotAuthorized
			}
			if user.IsValidRole(usr.Role, roles...) {
				return next(ctx)
			}
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("User role %s is not authorized to access this route", usr.Role))
		}
	}
}

// rateLimitMiddleware limits requests per client IP. Decisions are recorded in stats when set.
func rateLimitMiddleware(store *ratelimit.Store, stats ratelimit.StatsRecorder, logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			key := ctx.RealIP()
			allowed, retryAfter := store.Allow(key)

			if stats != nil {
				ev := ratelimit.Event{Key: key, Allowed: allowed, Method: ctx.Request().Method, Path: ctx.Path(), At: time.Now()}
				if err := stats.Record(ctx.Request().Context(), ev); err != nil {
					logger.Warn("recording rate limit stats", err)
				}
			}

			if !allowed {
				ctx.Response().Header().Set("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(retryAfter)))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
