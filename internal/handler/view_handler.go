package handler

import (
	"encoding/json"
	"net/http"

	"crm-service/internal/middleware"
	"crm-service/internal/model"
	"crm-service/internal/store"
	"crm-service/internal/view"
	"crm-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ViewHandler exposes live watch streams over leads and events. Each response
// is a stream of JSON lines: the initial page as "snapshot" records, then one
// "delta" record per change until the client disconnects.
type ViewHandler struct {
	views *view.Coordinator
}

// NewViewHandler creates a ViewHandler
func NewViewHandler(views *view.Coordinator) *ViewHandler {
	return &ViewHandler{views: views}
}

// WatchLeads handles GET /api/leads/watch
func (h *ViewHandler) WatchLeads(c echo.Context) error {
	return h.watch(c, func(p model.Principal, q view.Query) (*view.View, error) {
		return h.views.OpenLeads(c.Request().Context(), p, q, view.ModeLive)
	})
}

// WatchEvents handles GET /api/events/watch
func (h *ViewHandler) WatchEvents(c echo.Context) error {
	return h.watch(c, func(p model.Principal, q view.Query) (*view.View, error) {
		return h.views.OpenEvents(c.Request().Context(), p, q, view.ModeLive)
	})
}

func (h *ViewHandler) watch(c echo.Context, open func(model.Principal, view.Query) (*view.View, error)) error {
	log := logger.FromEcho(c)

	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return respondError(c, model.ErrUnauthenticated)
	}

	q := view.Query{PageSize: 100}
	if status := c.QueryParam("status"); status != "" {
		q.Pushdown.Equals = map[string]string{"status": status}
	}
	// Only one predicate can be pushed down per query; anything further is
	// evaluated client-side over the page and the stream.
	if assignee := c.QueryParam("assigned_to"); assignee != "" {
		q.Match = docFilter("assigned_to", assignee)
	}

	v, err := open(principal, q)
	if err != nil {
		return respondError(c, err)
	}
	defer v.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	res.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(res)

	snapshot, err := v.InitialPage(c.Request().Context())
	if err != nil {
		log.Warn("Failed to load watch snapshot", zap.Error(err))
		return nil
	}
	for _, doc := range snapshot {
		if err := enc.Encode(echo.Map{"type": "snapshot", "doc": doc}); err != nil {
			return nil
		}
	}
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			// Client gone: Close (deferred) tears the subscription down now,
			// not on the next delta.
			return nil
		case delta, more := <-v.Deltas():
			if !more {
				return nil
			}
			if err := enc.Encode(echo.Map{"type": "delta", "op": delta.Op, "doc": delta.Doc}); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// docFilter builds a residual predicate matching a document field against a
// value.
func docFilter(field, want string) func(store.Document) bool {
	return func(doc store.Document) bool {
		var obj map[string]any
		if err := json.Unmarshal(doc.Data, &obj); err != nil {
			return false
		}
		got, ok := obj[field]
		if !ok {
			return false
		}
		s, ok := got.(string)
		return ok && s == want
	}
}
