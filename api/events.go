package api

import (
	"net/http"
	"strings"

	"github.com/growthbook/notify/audit"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
)

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	opts := event.ListOpts{
		Page:       queryInt(r, "page", 1),
		PerPage:    queryInt(r, "perPage", event.DefaultPerPage),
		EventTypes: queryList(r, "type"),
		From:       from,
		To:         to,
		SortOrder:  event.SortDesc,
	}
	if queryParam(r, "sortOrder") == string(event.SortAsc) {
		opts.SortOrder = event.SortAsc
	}

	orgID := organization(r)
	events, err := h.events.ListForOrganization(r.Context(), orgID, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	total, err := h.events.CountForOrganization(r.Context(), orgID, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []*event.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":  events,
		"total":   total,
		"page":    max(opts.Page, 1),
		"perPage": opts.Limit(),
	})
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	evtID, err := id.ParseEventID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event ID")
		return
	}

	evt, err := h.events.GetForOrganization(r.Context(), evtID, organization(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": evt})
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}

	records, total, err := h.audit.List(r.Context(), organization(r), audit.LegacyQuery{
		EntityType: queryParam(r, "entityType"),
		EntityID:   queryParam(r, "entityId"),
		Events:     queryList(r, "event"),
		From:       from,
		To:         to,
		Page:       queryInt(r, "page", 1),
		PerPage:    queryInt(r, "perPage", event.DefaultPerPage),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records, "total": total})
}

// queryList collects a repeated or comma-separated query parameter.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
