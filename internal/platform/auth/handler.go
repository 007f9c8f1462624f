package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// SessionHandler serves the BFF session endpoints. The BFF keeps no
// session store: login hands the token back and every later request
// carries it as a bearer credential.
type SessionHandler struct {
	authn    session.Authenticator
	onLogout func(clientID string)
}

// NewSessionHandler builds the handler. onLogout, when set, is called with
// the caller's tab ID so per-tab state can be dropped.
func NewSessionHandler(authn session.Authenticator, onLogout func(clientID string)) *SessionHandler {
	return &SessionHandler{authn: authn, onLogout: onLogout}
}

func (h *SessionHandler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/session")
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/me", h.Me)
	g.GET("/guard", h.Guard)
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// SessionInfo describes an authenticated caller.
type SessionInfo struct {
	Token        string       `json:"token,omitempty"`
	Email        string       `json:"email,omitempty"`
	Role         session.Role `json:"role"`
	RoleLabel    string       `json:"role_label"`
	Home         string       `json:"home"`
	Menu         []MenuEntry  `json:"menu"`
	Capabilities []Capability `json:"capabilities"`
}

func describe(s *session.Session) SessionInfo {
	role := s.Role()
	menu := Menu(role)
	if menu == nil {
		menu = []MenuEntry{}
	}
	caps := Capabilities(role)
	if caps == nil {
		caps = []Capability{}
	}
	return SessionInfo{
		Email:        s.Email(),
		Role:         role,
		RoleLabel:    role.Label(),
		Home:         Home(role),
		Menu:         menu,
		Capabilities: caps,
	}
}

// Login handles POST /session/login.
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s := session.New()
	if err := s.Login(c.Request().Context(), h.authn, req.Email, req.Password); err != nil {
		if errors.Is(err, session.ErrMissingCredentials) {
			return echo.NewHTTPError(http.StatusBadRequest, "Ingresa correo y contraseña")
		}
		return notification.HTTPError(err, "No se pudo iniciar sesión")
	}
	info := describe(s)
	info.Token = s.Token()
	return c.JSON(http.StatusOK, info)
}

// Logout handles POST /session/logout. The client drops its token; the
// BFF forgets the tab's views.
func (h *SessionHandler) Logout(c echo.Context) error {
	if s := session.FromContext(c.Request().Context()); s != nil {
		s.Logout()
	}
	if tab, _ := c.Get("client_id").(string); tab != "" && h.onLogout != nil {
		h.onLogout(tab)
	}
	return c.JSON(http.StatusOK, map[string]string{"location": LoginPath})
}

// Me handles GET /session/me.
func (h *SessionHandler) Me(c echo.Context) error {
	s := session.FromContext(c.Request().Context())
	if s == nil || !s.Authenticated() {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, describe(s))
}

// Guard handles GET /session/guard?path=, telling the console whether the
// caller may open a page.
func (h *SessionHandler) Guard(c echo.Context) error {
	return c.JSON(http.StatusOK, AuthorizePath(session.FromContext(c.Request().Context()), c.QueryParam("path")))
}
