// Package notification provides the transient user-facing messages raised by
// views (toast-style), the error-to-message extraction used for them, an
// in-memory recent-message store, publishing to live clients and Echo HTTP
// handlers.
package notification

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// ---------------------------------------------------------------------------
// Kinds
// ---------------------------------------------------------------------------

// Kind is the closed set of notification kinds. Call sites never invent
// their own.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

var kindLabels = map[Kind]string{
	KindSuccess: "Éxito",
	KindInfo:    "Info",
	KindWarning: "Aviso",
	KindError:   "Error",
}

// Valid reports whether k is one of the four kinds.
func (k Kind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// Label is the heading shown with the message.
func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return "Mensaje"
}

// ---------------------------------------------------------------------------
// Notification
// ---------------------------------------------------------------------------

// Notification is a single transient message for one client.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Label     string    `json:"label"`
	Message   string    `json:"message"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a notification. An unknown kind is coerced to KindInfo.
func New(kind Kind, message string) Notification {
	if !kind.Valid() {
		kind = KindInfo
	}
	return Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Label:     kind.Label(),
		Message:   message,
		CreatedAt: time.Now(),
	}
}

func Success(message string) Notification { return New(KindSuccess, message) }
func Info(message string) Notification    { return New(KindInfo, message) }
func Warning(message string) Notification { return New(KindWarning, message) }

// FromError turns a failed action into a notification. Validation problems
// and API rejections are warnings; anything else is an error.
func FromError(err error, fallback string) Notification {
	kind := KindError
	var apiErr *apiclient.Error
	if IsValidation(err) || errors.As(err, &apiErr) {
		kind = KindWarning
	}
	return New(kind, Message(err, fallback))
}

// ---------------------------------------------------------------------------
// Error messages
// ---------------------------------------------------------------------------

// GenericMessage is used when nothing better can be extracted.
const GenericMessage = "Error desconocido"

// ValidationError is a local check that failed before any request was sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid returns a *ValidationError.
func Invalid(message string) error {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Message extracts a human-readable message. Field error lists become one
// "<path>: <msg>" line each; a string detail is returned as is. Network and
// unknown failures fall back to fallback, or GenericMessage if blank.
func Message(err error, fallback string) string {
	if fallback == "" {
		fallback = GenericMessage
	}
	if err == nil {
		return fallback
	}

	var v *ValidationError
	if errors.As(err, &v) {
		return v.Message
	}

	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		if len(apiErr.Fields) > 0 {
			lines := make([]string, 0, len(apiErr.Fields))
			for _, f := range apiErr.Fields {
				msg := f.Msg
				if msg == "" {
					msg = "Error de validación"
				}
				lines = append(lines, f.Path()+": "+msg)
			}
			return strings.Join(lines, "\n")
		}
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
	}
	return fallback
}

// ---------------------------------------------------------------------------
// Delivery
// ---------------------------------------------------------------------------

// Notifier receives notifications raised by views.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(context.Context, Notification) {})

// Publisher pushes a notification to live clients subscribed to its topic.
type Publisher interface {
	PublishNotification(ctx context.Context, n Notification) error
}

// Center records the most recent notifications per topic and forwards them
// to an optional Publisher.
type Center struct {
	mu        sync.RWMutex
	recent    map[string][]Notification
	keep      int
	publisher Publisher
	now       func() time.Time
}

// NewCenter keeps up to keep notifications per topic (20 if keep <= 0).
func NewCenter(publisher Publisher, keep int) *Center {
	if keep <= 0 {
		keep = 20
	}
	return &Center{
		recent:    make(map[string][]Notification),
		keep:      keep,
		publisher: publisher,
		now:       time.Now,
	}
}

// Notify stores n under its topic and publishes it. A notification without
// a topic takes the one carried by ctx; one with no topic at all has no
// recipient and is not stored.
func (c *Center) Notify(ctx context.Context, n Notification) {
	if n.Topic == "" {
		n.Topic = TopicFromContext(ctx)
	}
	if n.Topic != "" {
		c.mu.Lock()
		list := append(c.recent[n.Topic], n)
		if len(list) > c.keep {
			list = list[len(list)-c.keep:]
		}
		c.recent[n.Topic] = list
		c.mu.Unlock()
	}

	if c.publisher != nil {
		_ = c.publisher.PublishNotification(ctx, n)
	}
}

// Recent returns up to limit notifications for topic, newest first.
func (c *Center) Recent(topic string, limit int) []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.recent[topic]
	out := make([]Notification, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Drop forgets the history of topic.
func (c *Center) Drop(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.recent, topic)
}

// Sweep forgets topics whose newest notification is older than maxIdle and
// returns how many were dropped.
func (c *Center) Sweep(maxIdle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-maxIdle)
	n := 0
	for topic, list := range c.recent {
		if len(list) == 0 || list[len(list)-1].CreatedAt.Before(cutoff) {
			delete(c.recent, topic)
			n++
		}
	}
	return n
}

// Topics returns the number of topics with history.
func (c *Center) Topics() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.recent)
}

// Recorder collects notifications in memory, for the CLI and tests.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of everything recorded.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent notification and false if none was recorded.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

type topicKey struct{}

// ContextWithTopic scopes notifications raised under ctx to topic (the
// browser tab that made the request).
func ContextWithTopic(ctx context.Context, topic string) context.Context {
	return context.WithValue(ctx, topicKey{}, topic)
}

// TopicFromContext returns the topic stored in ctx, or "".
func TopicFromContext(ctx context.Context) string {
	t, _ := ctx.Value(topicKey{}).(string)
	return t
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// HTTPError maps a failed action to the HTTP error returned by the BFF.
// Validation problems are 400, clinic API rejections keep their status,
// and unreachable or unknown failures are 502.
func HTTPError(err error, fallback string) *echo.HTTPError {
	msg := Message(err, fallback)
	if IsValidation(err) {
		return echo.NewHTTPError(http.StatusBadRequest, msg)
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		return echo.NewHTTPError(apiErr.Status, msg)
	}
	return echo.NewHTTPError(http.StatusBadGateway, msg)
}

// ClientIDHeader identifies the browser tab a notification belongs to.
const ClientIDHeader = "X-Client-ID"

// TabTopic scopes a browser tab ID to the credential it is used with, so
// the same tab ID presented with another token names a different tab. It
// returns "" unless both parts are set.
func TabTopic(clientID, fingerprint string) string {
	if clientID == "" || fingerprint == "" {
		return ""
	}
	return fingerprint + ":" + clientID
}

// Handler serves the recent-notification history.
type Handler struct {
	center *Center
}

func NewHandler(center *Center) *Handler {
	return &Handler{center: center}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.HandleRecent)
}

// HandleRecent handles GET /notifications?client_id=&limit=. Only the
// history of the caller's own tab under its current credential is served.
func (h *Handler) HandleRecent(c echo.Context) error {
	sess := session.FromContext(c.Request().Context())
	if sess == nil || !sess.Authenticated() {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id := c.QueryParam("client_id")
	if id == "" {
		id = c.Request().Header.Get(ClientIDHeader)
	}
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}
	topic := TabTopic(id, sess.Fingerprint())
	limit := 10
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}
	return c.JSON(http.StatusOK, h.center.Recent(topic, limit))
}
