package event

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestUserJSON(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{DashboardUser("u1", "a@example.com", "Ada"), `{"type":"dashboard","id":"u1","email":"a@example.com","name":"Ada"}`},
		{APIKeyUser("key_1"), `{"type":"api_key","apiKey":"key_1"}`},
		{SystemUser(), `{"type":"system"}`},
		{User{}, `{"type":"system"}`},
	}

	for _, tt := range tests {
		b, err := json.Marshal(tt.user)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != tt.want {
			t.Fatalf("marshal %v: got %s, want %s", tt.user.Kind, b, tt.want)
		}

		var back User
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatal(err)
		}
		if back.Kind == "" {
			t.Fatal("expected a kind after unmarshal")
		}
	}

	var u User
	if err := json.Unmarshal([]byte(`{"type":"robot"}`), &u); err == nil {
		t.Fatal("expected error for unknown user type")
	}
}

func TestDataFlattensExtra(t *testing.T) {
	d := Data{
		Object:             map[string]any{"id": "x"},
		PreviousAttributes: map[string]any{"enabled": false},
		Extra:              map[string]any{"decision": map[string]any{"reason": "r"}},
	}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}

	var flat map[string]any
	_ = json.Unmarshal(b, &flat)
	for _, k := range []string{"object", "previous_attributes", "decision"} {
		if _, ok := flat[k]; !ok {
			t.Fatalf("expected key %q in %s", k, b)
		}
	}
	if _, ok := flat["changes"]; ok {
		t.Fatal("nil changes must be omitted")
	}

	var back Data
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Extra["decision"] == nil || back.PreviousAttributes["enabled"] != false {
		t.Fatalf("round trip lost fields: %+v", back)
	}
}

func TestDataNilObjectEncodesEmpty(t *testing.T) {
	b, _ := json.Marshal(Data{})
	if string(b) != `{"object":{}}` {
		t.Fatalf("got %s", b)
	}
}

func TestListOpts(t *testing.T) {
	o := ListOpts{}
	if o.Limit() != DefaultPerPage || o.Offset() != 0 {
		t.Fatalf("unexpected defaults %d %d", o.Limit(), o.Offset())
	}
	o = ListOpts{Page: 3, PerPage: 1000}
	if o.Limit() != MaxPerPage || o.Offset() != 2*MaxPerPage {
		t.Fatalf("unexpected clamp %d %d", o.Limit(), o.Offset())
	}
	for _, page := range []int{5e16, math.MaxInt} {
		if off := (ListOpts{Page: page, PerPage: MaxPerPage}).Offset(); off != math.MaxInt {
			t.Fatalf("page %d: expected offset to saturate, got %d", page, off)
		}
	}

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	evt := &Event{EventName: "feature.created", ObjectType: "feature", ObjectID: "f1", DateCreated: at}

	from, to := at, at.Add(time.Second)
	if !(ListOpts{From: &from, To: &to}).Matches(evt) {
		t.Fatal("from is inclusive")
	}
	to = at
	if (ListOpts{To: &to}).Matches(evt) {
		t.Fatal("to is exclusive")
	}
	if (ListOpts{ObjectID: "f2"}).Matches(evt) {
		t.Fatal("object id filter")
	}
	if !(ListOpts{EventTypes: []string{"feature.create", "feature.created"}}).Matches(evt) {
		t.Fatal("event type filter")
	}
}
