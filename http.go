package accounts

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"

	"github.com/goliatone/go-accounts/middleware/jwtware"
)

// SessionIDCookie carries the per browser id CSRF tokens are bound to
const SessionIDCookie = "accounts.sid"

// SessionIDLocalsKey is where SessionID stores the id for the request
const SessionIDLocalsKey = "session_id"

const sessionClaimsLocalsKey = "session_claims"

// HTTPErrorHandler renders every error as {"error": message} with the
// status taken from the rich error code.
func HTTPErrorHandler(logger Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx, err error) error {
		status, message := httpError(err)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", c.Path(), "error", err)
		} else {
			logger.Debug("request rejected", "path", c.Path(), "status", status, "error", err)
		}

		return c.Status(status).JSON(fiber.Map{"error": message})
	}
}

func httpError(err error) (int, string) {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := richErr.Code
		if status == 0 {
			status = statusForCategory(richErr.Category)
		}
		if status >= http.StatusInternalServerError {
			return status, "Internal server error"
		}
		return status, richErr.Message
	}

	var fiberErr *fiber.Error
	if goerrors.As(err, &fiberErr) {
		return fiberErr.Code, fiberErr.Message
	}

	return http.StatusInternalServerError, "Internal server error"
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// SessionID makes sure every browser carries a random session id cookie
// and exposes it in locals for the CSRF middleware.
func SessionID(cfg Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			sid := ctx.Cookies(SessionIDCookie)
			if _, err := uuid.Parse(sid); err != nil {
				sid = uuid.NewString()
				ctx.Cookie(&router.Cookie{
					Name:        SessionIDCookie,
					Value:       sid,
					Path:        "/",
					HTTPOnly:    true,
					Secure:      cfg.GetSecureCookies(),
					SameSite:    router.CookieSameSiteLaxMode,
					SessionOnly: true,
				})
			}

			ctx.Locals(SessionIDLocalsKey, sid)
			return ctx.Next()
		}
	}
}

// Authenticate resolves the session token into the calling account and
// stores it in the request context, see CallerFromContext. The token is
// read from the session cookie or an Authorization bearer header.
// Requests without a valid session continue anonymously, handlers that
// need a caller check for one.
func Authenticate(service *Service, tokens *TokenService, cfg Config) router.MiddlewareFunc {
	return jwtware.New(jwtware.Config{
		ContextKey:     sessionClaimsLocalsKey,
		TokenLookup:    "cookie:" + cfg.GetSessionCookie() + ",header:" + router.HeaderAuthorization,
		TokenValidator: tokens,
		Optional:       true,
		ValidationListeners: []jwtware.ValidationListener{
			func(ctx router.Context, claims jwt.Claims) error {
				session, ok := claims.(*SessionClaims)
				if !ok {
					return ErrInvalidSession
				}

				account, err := service.Get(ctx.Context(), session.Handle())
				if err != nil {
					if goerrors.IsNotFound(err) {
						return ErrInvalidSession
					}
					return err
				}

				if !account.Enabled {
					return ErrInvalidSession
				}

				ctx.SetContext(WithCaller(ctx.Context(), account))
				return nil
			},
		},
		ErrorHandler: func(ctx router.Context, err error) error {
			if goerrors.IsInternal(err) {
				return err
			}
			clearSessionCookie(ctx, cfg)
			return ctx.Next()
		},
	})
}

func callerFrom(ctx router.Context) *Account {
	caller, _ := CallerFromContext(ctx.Context())
	return caller
}

func setSessionCookie(ctx router.Context, cfg Config, token string) {
	ctx.Cookie(&router.Cookie{
		Name:     cfg.GetSessionCookie(),
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(cfg.GetSessionTTL()),
		HTTPOnly: true,
		Secure:   cfg.GetSecureCookies(),
		SameSite: router.CookieSameSiteLaxMode,
	})
}

func clearSessionCookie(ctx router.Context, cfg Config) {
	ctx.Cookie(&router.Cookie{
		Name:     cfg.GetSessionCookie(),
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   cfg.GetSecureCookies(),
		SameSite: router.CookieSameSiteLaxMode,
	})
}
