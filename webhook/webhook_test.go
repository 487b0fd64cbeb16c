package webhook

import "testing"

func TestMatch(t *testing.T) {
	sub := &Subscription{
		Events:   []string{"feature.created"},
		Enabled:  true,
		Tags:     []string{"a", "b"},
		Projects: nil,
	}

	tests := []struct {
		name string
		opts MatchOpts
		want bool
	}{
		{"tag intersects", MatchOpts{EventName: "feature.created", Enabled: true, Tags: []string{"b", "z"}}, true},
		{"no tag overlap", MatchOpts{EventName: "feature.created", Enabled: true, Tags: []string{"z"}}, false},
		{"event has no tags", MatchOpts{EventName: "feature.created", Enabled: true}, false},
		{"empty project filter is wildcard", MatchOpts{EventName: "feature.created", Enabled: true, Tags: []string{"a"}, Projects: []string{"p"}}, true},
		{"other event", MatchOpts{EventName: "feature.deleted", Enabled: true, Tags: []string{"a"}}, false},
		{"enabled mismatch", MatchOpts{EventName: "feature.created", Enabled: false, Tags: []string{"a"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(sub, tt.opts); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchEnvironments(t *testing.T) {
	if !MatchEnvironments(&Subscription{}, []string{"production"}) {
		t.Fatal("empty filter matches everything")
	}
	sub := &Subscription{Environments: []string{"production"}}
	if !MatchEnvironments(sub, []string{"dev", "production"}) {
		t.Fatal("expected intersection to match")
	}
	if MatchEnvironments(sub, []string{"dev"}) {
		t.Fatal("expected no match")
	}
}

func TestApplyDefaults(t *testing.T) {
	s := &Subscription{}
	if !s.ApplyDefaults() {
		t.Fatal("expected changes on an empty record")
	}
	if s.ApplyDefaults() {
		t.Fatal("second pass must be a no-op")
	}
}
