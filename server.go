package accounts

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-accounts/middleware/csrf"
)

// ServerOptions groups what NewHTTPServer wires together
type ServerOptions struct {
	Service     *Service
	Config      Config
	Logger      Logger
	CSRFStorage csrf.Storage
	CSRF        *csrf.Config
}

// NewHTTPServer returns a fiber backed server exposing the CSRF handshake
// and every account endpoint. Middleware order: session id, CSRF,
// authentication. Call WrappedRouter to get the fiber app.
func NewHTTPServer(opts ServerOptions) router.Server[*fiber.App] {
	logger := opts.Logger
	if logger == nil {
		logger = defLogger{}
	}

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			AppName:               "accounts",
			DisableStartupMessage: true,
			UnescapePath:          true,
			ErrorHandler:          HTTPErrorHandler(logger),
		})
	})

	r := srv.Router()
	r.WithLogger(logger)

	tokens := NewTokenService(opts.Config, logger)

	csrfCfg := csrf.Config{}
	if opts.CSRF != nil {
		csrfCfg = *opts.CSRF
	}
	if csrfCfg.Storage == nil {
		csrfCfg.Storage = opts.CSRFStorage
	}
	if csrfCfg.Storage == nil {
		csrfCfg.Storage = csrf.NewMemoryStorage()
	}
	csrfCfg.SessionKey = SessionIDLocalsKey

	r.Use(SessionID(opts.Config))
	r.Use(csrf.New(csrfCfg))
	r.Use(Authenticate(opts.Service, tokens, opts.Config))

	csrf.RegisterRoutes(r, csrf.RouteConfig{
		Path:       "/csrf-token",
		ContextKey: csrfCfg.ContextKey,
	})

	RegisterAccountRoutes(r, NewController(opts.Service, tokens, opts.Config, WithControllerLogger(logger)))

	return srv
}
