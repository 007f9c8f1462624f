// Package auth holds the one authorization table of the console and the
// guard that consults it. Pages, menu entries and BFF routes all ask the
// same question: may this role use this capability?
package auth

import (
	"sort"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// Capability is a page or action that is subject to authorization.
type Capability string

const (
	CapDashboard    Capability = "dashboard"
	CapPatients     Capability = "patients"
	CapAppointments Capability = "appointments"
	CapBlocks       Capability = "blocks"
	CapNotes        Capability = "notes"
	CapBlockDelete  Capability = "block.delete"
)

var (
	everyone  = []session.Role{session.RoleAdmin, session.RolePsychologist, session.RoleAssistant}
	clinician = []session.Role{session.RoleAdmin, session.RolePsychologist}
)

// policy maps each capability to the roles allowed to use it.
var policy = map[Capability][]session.Role{
	CapDashboard:    clinician,
	CapPatients:     everyone,
	CapAppointments: everyone,
	CapBlocks:       everyone,
	CapNotes:        clinician,
	CapBlockDelete:  clinician,
}

// routes maps console pages to the capability that guards them.
var routes = map[string]Capability{
	"/dashboard":    CapDashboard,
	"/patients":     CapPatients,
	"/appointments": CapAppointments,
	"/blocks":       CapBlocks,
	"/notes":        CapNotes,
}

// menu is the navigation order.
var menu = []struct {
	Path  string
	Label string
}{
	{"/dashboard", "Dashboard"},
	{"/patients", "Pacientes"},
	{"/appointments", "Citas"},
	{"/blocks", "Bloqueos"},
	{"/notes", "Notas"},
}

const LoginPath = "/login"

// Allowed reports whether role may use capability. Unknown capabilities
// are denied.
func Allowed(role session.Role, capability Capability) bool {
	for _, r := range policy[capability] {
		if r == role {
			return true
		}
	}
	return false
}

// Roles returns the roles allowed to use capability.
func Roles(capability Capability) []session.Role {
	return append([]session.Role(nil), policy[capability]...)
}

// Capabilities returns every capability role may use, sorted.
func Capabilities(role session.Role) []Capability {
	var out []Capability
	for c := range policy {
		if Allowed(role, c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Home is where a role lands after login or after being turned away.
func Home(role session.Role) string {
	if role == session.RoleAssistant {
		return "/patients"
	}
	return "/dashboard"
}

// Outcome is the result of a guard check.
type Outcome string

const (
	Allow    Outcome = "allow"
	Login    Outcome = "login"
	Pending  Outcome = "pending"
	Redirect Outcome = "redirect"
)

// Decision tells the caller what to do. Target is set for Login and
// Redirect.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target,omitempty"`
}

// Authorize is the guard. Without a credential the caller is sent to
// login; with a credential but no role yet the decision is pending; a
// role without the capability is sent to its home page.
func Authorize(authenticated bool, role session.Role, capability Capability) Decision {
	switch {
	case !authenticated:
		return Decision{Outcome: Login, Target: LoginPath}
	case role == "":
		return Decision{Outcome: Pending}
	case !Allowed(role, capability):
		return Decision{Outcome: Redirect, Target: Home(role)}
	default:
		return Decision{Outcome: Allow}
	}
}

// AuthorizeSession applies Authorize to a session; nil is unauthenticated.
func AuthorizeSession(s *session.Session, capability Capability) Decision {
	if s == nil {
		return Authorize(false, "", capability)
	}
	return Authorize(s.Authenticated(), s.Role(), capability)
}

// AuthorizePath guards a console page. "/" and unknown pages send the
// caller home.
func AuthorizePath(s *session.Session, path string) Decision {
	path = "/" + strings.Trim(path, "/")
	if s == nil || !s.Authenticated() {
		if path == LoginPath {
			return Decision{Outcome: Allow}
		}
		return Decision{Outcome: Login, Target: LoginPath}
	}
	c, ok := routes[path]
	if !ok {
		if s.Role() == "" {
			return Decision{Outcome: Pending}
		}
		return Decision{Outcome: Redirect, Target: Home(s.Role())}
	}
	return AuthorizeSession(s, c)
}

// MenuEntry is one navigation link.
type MenuEntry struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Menu returns the navigation entries visible to role.
func Menu(role session.Role) []MenuEntry {
	var out []MenuEntry
	for _, m := range menu {
		if Allowed(role, routes[m.Path]) {
			out = append(out, MenuEntry{Path: m.Path, Label: m.Label})
		}
	}
	return out
}
