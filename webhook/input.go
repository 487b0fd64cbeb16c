package webhook

// Input is the creation payload for subscriptions.
type Input struct {
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Events       []string          `json:"events"`
	Enabled      bool              `json:"enabled"`
	Projects     []string          `json:"projects,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Environments []string          `json:"environments,omitempty"`
	PayloadType  PayloadType       `json:"payloadType,omitempty"`
	Method       Method            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Patch is a partial update. Nil fields are left unchanged; a non-nil
// pointer to an empty list clears it.
type Patch struct {
	Name         *string            `json:"name,omitempty"`
	URL          *string            `json:"url,omitempty"`
	Events       *[]string          `json:"events,omitempty"`
	Enabled      *bool              `json:"enabled,omitempty"`
	Projects     *[]string          `json:"projects,omitempty"`
	Tags         *[]string          `json:"tags,omitempty"`
	Environments *[]string          `json:"environments,omitempty"`
	PayloadType  *PayloadType       `json:"payloadType,omitempty"`
	Method       *Method            `json:"method,omitempty"`
	Headers      *map[string]string `json:"headers,omitempty"`
}

// apply merges p into s.
func (p Patch) apply(s *Subscription) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.URL != nil {
		s.URL = *p.URL
	}
	if p.Events != nil {
		s.Events = *p.Events
	}
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.Projects != nil {
		s.Projects = *p.Projects
	}
	if p.Tags != nil {
		s.Tags = *p.Tags
	}
	if p.Environments != nil {
		s.Environments = *p.Environments
	}
	if p.PayloadType != nil {
		s.PayloadType = *p.PayloadType
	}
	if p.Method != nil {
		s.Method = *p.Method
	}
	if p.Headers != nil {
		s.Headers = *p.Headers
	}
}
