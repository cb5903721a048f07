package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

type ControllerRoutes struct {
	Base           string
	List           string
	Login          string
	Logout         string
	Me             string
	ChangePassword string
	RecoverStep1   string
	RecoverStep2   string
	Admin          string
	AdminGet       string
	AdminCreate    string
	AdminEnable    string
	AdminDisable   string
	AdminPromote   string
	AdminDemote    string
}

// Controller exposes Service over JSON endpoints
type Controller struct {
	Logger  Logger
	Service *Service
	Tokens  *TokenService
	Config  Config
	Routes  *ControllerRoutes
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRoutes(routes *ControllerRoutes) ControllerOption {
	return func(c *Controller) *Controller {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

func NewController(service *Service, tokens *TokenService, cfg Config, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:  defLogger{},
		Service: service,
		Tokens:  tokens,
		Config:  cfg,
		Routes: &ControllerRoutes{
			Base:           "/api/users",
			List:           "/list",
			Login:          "/login",
			Logout:         "/logout",
			Me:             "/me",
			ChangePassword: "/change-password",
			RecoverStep1:   "/recover-step1",
			RecoverStep2:   "/recover-step2",
			Admin:          "/admin",
			AdminGet:       "/get",
			AdminCreate:    "/create",
			AdminEnable:    "/enable",
			AdminDisable:   "/disable",
			AdminPromote:   "/promote",
			AdminDemote:    "/demote",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

// RegisterAccountRoutes mounts the account endpoints of ctrl on app.
// Authentication and CSRF middleware are expected to run before them.
func RegisterAccountRoutes[T any](app router.Router[T], ctrl *Controller) {
	r := ctrl.Routes

	users := app.Group(r.Base)
	users.Post(r.List, ctrl.ListPublic).SetName("accounts.list")
	users.Post(r.Login, ctrl.Login).SetName("accounts.login")
	users.Post(r.Logout, ctrl.Logout).SetName("accounts.logout")
	users.Post(r.Me, ctrl.Me).SetName("accounts.me")
	users.Post(r.ChangePassword, ctrl.ChangePassword).SetName("accounts.change-password")
	users.Post(r.RecoverStep1, ctrl.RecoverStep1).SetName("accounts.recover-step1")
	users.Post(r.RecoverStep2, ctrl.RecoverStep2).SetName("accounts.recover-step2")

	admin := users.Group(r.Admin)
	admin.Post(r.AdminGet, ctrl.AdminList).SetName("accounts.admin.get")
	admin.Post(r.AdminCreate, ctrl.AdminCreate).SetName("accounts.admin.create")
	admin.Post(r.AdminEnable, ctrl.AdminEnable).SetName("accounts.admin.enable")
	admin.Post(r.AdminDisable, ctrl.AdminDisable).SetName("accounts.admin.disable")
	admin.Post(r.AdminPromote, ctrl.AdminPromote).SetName("accounts.admin.promote")
	admin.Post(r.AdminDemote, ctrl.AdminDemote).SetName("accounts.admin.demote")
}

func (ctrl *Controller) ListPublic(ctx router.Context) error {
	views, err := ctrl.Service.ListPublic(ctx.Context())
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, views)
}

func (ctrl *Controller) Login(ctx router.Context) error {
	var msg LoginMessage
	if err := parseBody(ctx, &msg); err != nil {
		return err
	}

	account, err := ctrl.Service.Login(ctx.Context(), msg)
	if err != nil {
		return err
	}

	if err := ctrl.startSession(ctx, account); err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, map[string]string{"handle": account.Handle})
}

func (ctrl *Controller) Logout(ctx router.Context) error {
	clearSessionCookie(ctx, ctrl.Config)
	return ctx.NoContent(router.StatusNoContent)
}

func (ctrl *Controller) Me(ctx router.Context) error {
	caller := callerFrom(ctx)
	if caller == nil {
		return ErrUnauthenticated
	}
	return ctx.JSON(router.StatusOK, ctrl.Service.View(caller))
}

func (ctrl *Controller) ChangePassword(ctx router.Context) error {
	var msg ChangePasswordMessage
	if err := parseBody(ctx, &msg); err != nil {
		return err
	}

	if err := ctrl.Service.ChangePassword(ctx.Context(), callerFrom(ctx), msg); err != nil {
		return err
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (ctrl *Controller) RecoverStep1(ctx router.Context) error {
	var msg RequestRecoveryMessage
	if err := parseBody(ctx, &msg); err != nil {
		return err
	}

	if err := ctrl.Service.RequestRecovery(ctx.Context(), msg); err != nil {
		return err
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (ctrl *Controller) RecoverStep2(ctx router.Context) error {
	var msg CompleteRecoveryMessage
	if err := parseBody(ctx, &msg); err != nil {
		return err
	}

	account, err := ctrl.Service.CompleteRecovery(ctx.Context(), msg)
	if err != nil {
		return err
	}

	if err := ctrl.startSession(ctx, account); err != nil {
		return err
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (ctrl *Controller) AdminList(ctx router.Context) error {
	views, err := ctrl.Service.List(ctx.Context(), callerFrom(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(router.StatusOK, views)
}

func (ctrl *Controller) AdminCreate(ctx router.Context) error {
	var msg CreateAccountMessage
	if err := parseBody(ctx, &msg); err != nil {
		return err
	}

	account, err := ctrl.Service.Create(ctx.Context(), callerFrom(ctx), msg)
	if err != nil {
		return err
	}

	return ctx.JSON(router.StatusOK, map[string]string{"handle": account.Handle})
}

func (ctrl *Controller) AdminEnable(ctx router.Context) error {
	return ctrl.handleCommand(ctx, ctrl.Service.Enable)
}

func (ctrl *Controller) AdminDisable(ctx router.Context) error {
	return ctrl.handleCommand(ctx, ctrl.Service.Disable)
}

func (ctrl *Controller) AdminPromote(ctx router.Context) error {
	return ctrl.handleCommand(ctx, ctrl.Service.Promote)
}

func (ctrl *Controller) AdminDemote(ctx router.Context) error {
	return ctrl.handleCommand(ctx, ctrl.Service.Demote)
}

type handleCommandFunc func(ctx context.Context, caller *Account, msg HandleMessage) error

func (ctrl *Controller) handleCommand(ctx router.Context, fn handleCommandFunc) error {
	var msg HandleMessage
	if err := parseBody(ctx, &msg); err != nil {
		return err
	}

	if err := fn(ctx.Context(), callerFrom(ctx), msg); err != nil {
		return err
	}

	return ctx.NoContent(router.StatusNoContent)
}

func (ctrl *Controller) startSession(ctx router.Context, account *Account) error {
	token, err := ctrl.Tokens.Issue(account)
	if err != nil {
		ctrl.Logger.Error("failed to issue session token", "handle", account.Handle, "error", err)
		return err
	}

	setSessionCookie(ctx, ctrl.Config, token)
	return nil
}

// parseBody decodes the JSON payload into out. Empty bodies leave out
// untouched so validation reports the missing fields.
func parseBody(ctx router.Context, out any) error {
	if len(ctx.Body()) == 0 {
		return nil
	}

	if err := ctx.Bind(out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "Invalid request body").
			WithCode(goerrors.CodeBadRequest)
	}

	return nil
}
