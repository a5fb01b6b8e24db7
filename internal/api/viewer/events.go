package viewer

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-collab/internal/humastar"
	"github.com/joeblew999/plat-collab/internal/maputil"
	"github.com/joeblew999/plat-collab/internal/service"
)

// RegisterEvents registers the per-map event stream.
func (h *Handler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/v1/viewer/maps/{id}/events", h.Events,
		huma.OperationTags("viewer"),
	)
}

// Events streams a map session: popups patch the popup element, state
// changes patch the map signals and catalogue changes are dispatched as
// resource-changed events. The stream ends with the session.
func (h *Handler) Events(ctx context.Context, input *MapInput) (*huma.StreamResponse, error) {
	sess, err := h.svc.Session.Get(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	updates, unsubscribe := sess.Renderer.Subscribe()

	return h.Stream(func(sse humastar.SSE) {
		defer unsubscribe()
		events := h.bus.Subscribe()
		defer h.bus.Unsubscribe(events)

		h.patchState(sse, sess)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					sse.Error("Carte fermée")
					return
				}
				switch u.Kind {
				case maputil.UpdatePopup:
					content := ""
					if u.Popup != nil {
						content = u.Popup.Content
					}
					sse.Patch(content, PopupSelector)
				case maputil.UpdateState:
					h.patchState(sse, sess)
				}
			case ev := <-events:
				if ev.Resource == "maps" && ev.ID != sess.ID {
					continue
				}
				sse.DispatchCustomEvent("resource-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
				})
			}
		}
	}), nil
}

func (h *Handler) patchState(sse humastar.SSE, sess *service.Session) {
	signals, err := stateSignals(sess)
	if err != nil {
		h.log.Debug().Err(err).Str("session", sess.ID).Msg("map state unavailable")
		return
	}
	sse.Signals(signals)
}
