package api

import (
	"net/http"

	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

// createWebhookResponse is the only response that reveals the signing key.
type createWebhookResponse struct {
	*webhook.Subscription
	SigningKey string `json:"signingKey"`
}

type testWebhookRequest struct {
	WebhookID string `json:"webhookId"`
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := h.webhooks.ListForOrganization(r.Context(), organization(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if subs == nil {
		subs = []*webhook.Subscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventWebHooks": subs})
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request) {
	var in webhook.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.webhooks.Create(r.Context(), organization(r), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"eventWebHook": createWebhookResponse{Subscription: sub, SigningKey: sub.SigningKey},
	})
}

func (h *Handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	sub, err := h.webhooks.GetByID(r.Context(), subID, organization(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventWebHook": sub})
}

func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	var p webhook.Patch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	orgID := organization(r)
	if _, err := h.webhooks.GetByID(r.Context(), subID, orgID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	updated, err := h.webhooks.Update(r.Context(), subID, orgID, p)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (h *Handler) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	deleted, err := h.webhooks.Delete(r.Context(), subID, organization(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rotateKey(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	key, err := h.webhooks.RotateSigningKey(r.Context(), subID, organization(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signingKey": key})
}

func (h *Handler) listDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseWebhookID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	orgID := organization(r)
	if _, err := h.webhooks.GetByID(r.Context(), subID, orgID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entries, err := h.logs.ListForWebhook(r.Context(), subID, orgID, queryInt(r, "limit", 0))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventWebHookLogs": entries})
}

// testWebhook records a webhook.test event that travels the normal
// dispatch and delivery path.
func (h *Handler) testWebhook(w http.ResponseWriter, r *http.Request) {
	var req testWebhookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	subID, err := id.ParseWebhookID(req.WebhookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook ID")
		return
	}

	orgID := organization(r)
	if _, err := h.webhooks.GetByID(r.Context(), subID, orgID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	evt, err := h.events.Create(r.Context(), event.CreateParams{
		OrganizationID: orgID,
		Resource:       taxonomy.ResourceWebhook,
		Event:          "test",
		ObjectID:       subID.String(),
		Object:         map[string]any{"webhookId": subID.String()},
		User:           caller(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"eventId": evt.ID.String()})
}
