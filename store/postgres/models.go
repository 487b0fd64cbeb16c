package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xraph/grove"

	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/internal/entity"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/webhook"
)

// --- Event models ---

type eventModel struct {
	grove.BaseModel `grove:"table:notify_events"`

	ID             string          `grove:"id,pk"`
	OrganizationID string          `grove:"organization_id"`
	ObjectType     string          `grove:"object_type"`
	ObjectID       string          `grove:"object_id"`
	EventName      string          `grove:"event_name"`
	SchemaVersion  int             `grove:"schema_version"`
	Data           json.RawMessage `grove:"data,type:jsonb"`
	DateCreated    time.Time       `grove:"date_created"`
}

func toEventModel(evt *event.Event) (*eventModel, error) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &eventModel{
		ID:             evt.ID.String(),
		OrganizationID: evt.OrganizationID,
		ObjectType:     evt.ObjectType,
		ObjectID:       evt.ObjectID,
		EventName:      evt.EventName,
		SchemaVersion:  evt.SchemaVersion,
		Data:           data,
		DateCreated:    evt.DateCreated,
	}, nil
}

func fromEventModel(m *eventModel) (*event.Event, error) {
	evtID, err := id.ParseEventID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.ID, err)
	}
	evt := &event.Event{
		ID:             evtID,
		OrganizationID: m.OrganizationID,
		ObjectType:     m.ObjectType,
		ObjectID:       m.ObjectID,
		EventName:      m.EventName,
		SchemaVersion:  m.SchemaVersion,
		DateCreated:    m.DateCreated,
	}
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &evt.Data); err != nil {
			return nil, fmt.Errorf("unmarshal event %s data: %w", m.ID, err)
		}
	}
	return evt, nil
}

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:notify_webhooks"`

	ID               string            `grove:"id,pk"`
	OrganizationID   string            `grove:"organization_id"`
	Name             string            `grove:"name"`
	URL              string            `grove:"url"`
	Method           string            `grove:"method"`
	PayloadType      string            `grove:"payload_type"`
	Headers          map[string]string `grove:"headers,type:jsonb"`
	Events           []string          `grove:"events,array"`
	Projects         []string          `grove:"projects,array"`
	Tags             []string          `grove:"tags,array"`
	Environments     []string          `grove:"environments,array"`
	Enabled          bool              `grove:"enabled"`
	SigningKey       string            `grove:"signing_key"`
	LastRunAt        *time.Time        `grove:"last_run_at"`
	LastState        string            `grove:"last_state"`
	LastResponseBody string            `grove:"last_response_body"`
	DateCreated      time.Time         `grove:"date_created"`
	DateUpdated      time.Time         `grove:"date_updated"`
}

func toWebhookModel(sub *webhook.Subscription) *webhookModel {
	return &webhookModel{
		ID:               sub.ID.String(),
		OrganizationID:   sub.OrganizationID,
		Name:             sub.Name,
		URL:              sub.URL,
		Method:           string(sub.Method),
		PayloadType:      string(sub.PayloadType),
		Headers:          sub.Headers,
		Events:           sub.Events,
		Projects:         sub.Projects,
		Tags:             sub.Tags,
		Environments:     sub.Environments,
		Enabled:          sub.Enabled,
		SigningKey:       sub.SigningKey,
		LastRunAt:        sub.LastRunAt,
		LastState:        string(sub.LastState),
		LastResponseBody: sub.LastResponseBody,
		DateCreated:      sub.DateCreated,
		DateUpdated:      sub.DateUpdated,
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Subscription, error) {
	subID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}
	sub := &webhook.Subscription{
		Entity: entity.Entity{
			DateCreated: m.DateCreated,
			DateUpdated: m.DateUpdated,
		},
		ID:               subID,
		OrganizationID:   m.OrganizationID,
		Name:             m.Name,
		URL:              m.URL,
		Method:           webhook.Method(m.Method),
		PayloadType:      webhook.PayloadType(m.PayloadType),
		Headers:          m.Headers,
		Events:           m.Events,
		Projects:         m.Projects,
		Tags:             m.Tags,
		Environments:     m.Environments,
		Enabled:          m.Enabled,
		SigningKey:       m.SigningKey,
		LastRunAt:        m.LastRunAt,
		LastState:        webhook.State(m.LastState),
		LastResponseBody: m.LastResponseBody,
	}
	return sub, nil
}

// --- Delivery log models ---

type deliveryLogModel struct {
	grove.BaseModel `grove:"table:notify_webhook_delivery_logs"`

	ID             string          `grove:"id,pk"`
	WebhookID      string          `grove:"webhook_id"`
	OrganizationID string          `grove:"organization_id"`
	EventID        string          `grove:"event_id"`
	ResponseCode   *int            `grove:"response_code"`
	ResponseBody   string          `grove:"response_body"`
	Result         string          `grove:"result"`
	Payload        json.RawMessage `grove:"payload,type:jsonb"`
	DateCreated    time.Time       `grove:"date_created"`
}

func toDeliveryLogModel(e *deliverylog.Entry) *deliveryLogModel {
	return &deliveryLogModel{
		ID:             e.ID.String(),
		WebhookID:      e.WebhookID.String(),
		OrganizationID: e.OrganizationID,
		EventID:        e.EventID.String(),
		ResponseCode:   e.ResponseCode,
		ResponseBody:   e.ResponseBody,
		Result:         string(e.Result),
		Payload:        e.Payload,
		DateCreated:    e.DateCreated,
	}
}

func fromDeliveryLogModel(m *deliveryLogModel) (*deliverylog.Entry, error) {
	logID, err := id.ParseDeliveryLogID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery log ID %q: %w", m.ID, err)
	}
	subID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}
	evtID, err := id.ParseEventID(m.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", m.EventID, err)
	}
	return &deliverylog.Entry{
		ID:             logID,
		WebhookID:      subID,
		OrganizationID: m.OrganizationID,
		EventID:        evtID,
		DateCreated:    m.DateCreated,
		ResponseCode:   m.ResponseCode,
		ResponseBody:   m.ResponseBody,
		Result:         deliverylog.Result(m.Result),
		Payload:        m.Payload,
	}, nil
}

// --- Job models ---

type jobModel struct {
	grove.BaseModel `grove:"table:notify_jobs"`

	ID          string          `grove:"id,pk"`
	Name        string          `grove:"name"`
	Key         string          `grove:"key"`
	Payload     json.RawMessage `grove:"payload,type:jsonb"`
	State       string          `grove:"state"`
	Attempts    int             `grove:"attempts"`
	Error       string          `grove:"error"`
	RunAt       time.Time       `grove:"run_at"`
	DateCreated time.Time       `grove:"date_created"`
	CompletedAt *time.Time      `grove:"completed_at"`
}

func toJobModel(j *jobs.Job) *jobModel {
	return &jobModel{
		ID:          j.ID.String(),
		Name:        j.Name,
		Key:         j.Key,
		Payload:     j.Payload,
		State:       string(j.State),
		Attempts:    j.Attempts,
		Error:       j.Error,
		RunAt:       j.RunAt,
		DateCreated: j.DateCreated,
		CompletedAt: j.CompletedAt,
	}
}

func fromJobModel(m *jobModel) (*jobs.Job, error) {
	jobID, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse job ID %q: %w", m.ID, err)
	}
	return &jobs.Job{
		ID:          jobID,
		Name:        m.Name,
		Key:         m.Key,
		Payload:     m.Payload,
		State:       jobs.State(m.State),
		Attempts:    m.Attempts,
		Error:       m.Error,
		RunAt:       m.RunAt,
		DateCreated: m.DateCreated,
		CompletedAt: m.CompletedAt,
	}, nil
}
