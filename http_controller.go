package accounts

import (
	"net/http"
	"time"

	"github.com/goliatone/go-router"
)

// AccountsController serves the auth, admin and recovery routes
type AccountsController struct {
	Debug        bool
	Logger       Logger
	Accounts     *AccountService
	Resets       *PasswordResetService
	Machine      *AccountStateMachine
	ContextKey   string
	CookieSecure bool
	CookieTTL    time.Duration
	Routes       *AccountsControllerRoutes
	ErrorHandler router.ErrorHandler
}

// AccountsControllerRoutes holds the route prefixes
type AccountsControllerRoutes struct {
	Auth     string
	Admin    string
	Recovery string
}

// AccountsControllerOption configures the controller
type AccountsControllerOption func(*AccountsController) *AccountsController

// WithControllerConfig applies the shared configuration
func WithControllerConfig(cfg Config) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Debug = cfg.GetDebug()
		c.CookieSecure = cfg.GetCookieSecure()
		if key := cfg.GetContextKey(); key != "" {
			c.ContextKey = key
		}
		if hours := cfg.GetSessionExpiration(); hours > 0 {
			c.CookieTTL = time.Duration(hours) * time.Hour
		}
		return c
	}
}

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// NewAccountsController returns a controller over the three services
func NewAccountsController(accounts *AccountService, resets *PasswordResetService, machine *AccountStateMachine, opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:     defLogger{},
		Accounts:   accounts,
		Resets:     resets,
		Machine:    machine,
		ContextKey: DefaultContextKey,
		CookieTTL:  defaultSessionExpiration * time.Hour,
		Routes: &AccountsControllerRoutes{
			Auth:     "/api/auth",
			Admin:    "/api/admin",
			Recovery: "/api/recovery",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = func(ctx router.Context, err error) error {
			return WriteError(ctx, err, c.Debug, c.Logger)
		}
	}

	return c
}

// RegisterRoutes mounts every route. protect resolves the session and
// throttle, when not nil, guards the auth routes.
func RegisterRoutes[T any](app router.Router[T], c *AccountsController, protect router.MiddlewareFunc, throttle router.MiddlewareFunc) {
	public := []router.MiddlewareFunc{}
	if throttle != nil {
		public = append(public, throttle)
	}
	private := append(append([]router.MiddlewareFunc{}, public...), protect)

	app.Post(c.Routes.Auth+"/signup", c.Signup, public...).SetName("auth.signup")
	app.Post(c.Routes.Auth+"/login", c.Login, public...).SetName("auth.login")
	app.Get(c.Routes.Auth+"/me", c.Me, private...).SetName("auth.me")
	app.Post(c.Routes.Auth+"/logout", c.Logout, private...).SetName("auth.logout")
	app.Post(c.Routes.Auth+"/forgot-password", c.ForgotPassword, public...).SetName("auth.forgot-password")
	app.Post(c.Routes.Auth+"/reset-password", c.ResetPassword, public...).SetName("auth.reset-password")

	app.Get(c.Routes.Admin+"/users", c.ListAccounts, protect).SetName("admin.users.list")
	app.Get(c.Routes.Admin+"/users/disabled", c.ListDisabled, protect).SetName("admin.users.disabled")
	app.Put(c.Routes.Admin+"/users/:id", c.UpdatePlan, protect).SetName("admin.users.update")
	app.Delete(c.Routes.Admin+"/users/:id", c.Disable, protect).SetName("admin.users.disable")
	app.Put(c.Routes.Admin+"/users/:id/restore", c.Restore, protect).SetName("admin.users.restore")
	app.Post(c.Routes.Admin+"/approve-superadmin/:id", c.ApproveSuperadmin, protect).SetName("admin.approve-superadmin")

	app.Get(c.Routes.Recovery+"/verify/:token", c.RecoveryVerify).SetName("recovery.verify")
	app.Post(c.Routes.Recovery+"/request-approval/:id", c.RequestApproval, protect).SetName("recovery.request-approval")
}

func (c *AccountsController) current(ctx router.Context) (*Account, error) {
	account, ok := GetRouterAccount(ctx, c.ContextKey)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return account, nil
}

func (c *AccountsController) success(ctx router.Context, status int, message string, data any) error {
	body := map[string]any{
		"status": "success",
	}
	if message != "" {
		body["message"] = message
	}
	if data != nil {
		body["data"] = data
	}
	return ctx.JSON(status, body)
}

func (c *AccountsController) setSessionCookie(ctx router.Context, session *Session) {
	ctx.Cookie(&router.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		HTTPOnly: true,
		Path:     "/",
		Secure:   c.CookieSecure,
		SameSite: "Strict",
	})
}

func (c *AccountsController) Signup(ctx router.Context) error {
	payload := new(SignupPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, ErrInvalidInput)
	}

	session, err := c.Accounts.Signup(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.setSessionCookie(ctx, session)
	return c.success(ctx, http.StatusCreated, "User registered successfully", map[string]any{
		"user":  session.Account.View(),
		"token": session.Token,
	})
}

func (c *AccountsController) Login(ctx router.Context) error {
	payload := new(LoginPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, ErrInvalidInput)
	}

	session, err := c.Accounts.Login(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	c.setSessionCookie(ctx, session)
	return c.success(ctx, http.StatusOK, "Login successful", map[string]any{
		"user":  session.Account.View(),
		"token": session.Token,
	})
}

func (c *AccountsController) Me(ctx router.Context) error {
	account, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "", map[string]any{
		"user":         account.View(),
		"capabilities": Capabilities(account),
	})
}

// Logout clears the cookie, session tokens stay valid until they expire
func (c *AccountsController) Logout(ctx router.Context) error {
	ctx.Cookie(&router.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   c.CookieSecure,
		SameSite: "Strict",
	})
	return c.success(ctx, http.StatusOK, "Logged out successfully", nil)
}

func (c *AccountsController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, ErrInvalidInput)
	}

	message, err := c.Resets.RequestReset(ctx.Context(), payload.Email)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, message, nil)
}

func (c *AccountsController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, ErrInvalidInput)
	}
	if err := payload.Validate(); err != nil {
		return c.ErrorHandler(ctx, validationError(err))
	}

	if _, err := c.Resets.ConsumeReset(ctx.Context(), payload.Token, payload.Password); err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "Password reset successful", nil)
}

func (c *AccountsController) ListAccounts(ctx router.Context) error {
	actor, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	list, err := c.Accounts.ListAccounts(ctx.Context(), actor, pageFromQuery(ctx))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "", list)
}

func (c *AccountsController) ListDisabled(ctx router.Context) error {
	actor, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	list, err := c.Accounts.ListDisabled(ctx.Context(), actor, pageFromQuery(ctx))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "", list)
}

func (c *AccountsController) UpdatePlan(ctx router.Context) error {
	actor, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	payload := new(UpdatePlanPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, ErrInvalidInput)
	}
	if err := payload.Validate(); err != nil {
		return c.ErrorHandler(ctx, validationError(err))
	}

	account, err := c.Machine.UpdatePlan(ctx.Context(), actor, ctx.Param("id"), Plan(payload.Plan))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "User updated successfully", account.View())
}

func (c *AccountsController) Disable(ctx router.Context) error {
	actor, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	account, err := c.Machine.Disable(ctx.Context(), actor, ctx.Param("id"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	message := "User disabled successfully"
	if account.Role == RoleSuperadmin {
		message = "Superadmin disabled. A recovery link has been sent to their email."
	}
	return c.success(ctx, http.StatusOK, message, account.View())
}

func (c *AccountsController) Restore(ctx router.Context) error {
	actor, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	account, err := c.Machine.Restore(ctx.Context(), actor, ctx.Param("id"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "User restored successfully", account.View())
}

func (c *AccountsController) ApproveSuperadmin(ctx router.Context) error {
	actor, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	account, err := c.Machine.ApproveSuperadmin(ctx.Context(), actor, ctx.Param("id"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "Superadmin access approved", account.View())
}

func (c *AccountsController) RecoveryVerify(ctx router.Context) error {
	account, err := c.Machine.RecoverViaToken(ctx.Context(), ctx.Param("token"))
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK,
		"Account recovered with limited admin access. Please request full access approval from another superadmin.",
		account.View(),
	)
}

func (c *AccountsController) RequestApproval(ctx router.Context) error {
	actor, err := c.current(ctx)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	if err := c.Machine.RequestApproval(ctx.Context(), actor, ctx.Param("id")); err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.success(ctx, http.StatusOK, "Approval request sent to active superadmins", nil)
}

func pageFromQuery(ctx router.Context) Page {
	return Page{
		Number: ctx.QueryInt("page", 1),
		Limit:  ctx.QueryInt("limit", defaultPageLimit),
	}.Normalize()
}
