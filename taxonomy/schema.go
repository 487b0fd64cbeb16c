package taxonomy

// Small constructors for the schema literals in Entries.

func object(props map[string]any, required ...string) Schema {
	s := Schema{"type": "object", "properties": props}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return s
}

func str() Schema     { return Schema{"type": "string"} }
func boolean() Schema { return Schema{"type": "boolean"} }
func number() Schema  { return Schema{"type": "number"} }
func anyObj() Schema  { return Schema{"type": "object"} }

func strList() Schema {
	return Schema{"type": "array", "items": Schema{"type": "string"}}
}

func enum(values ...string) Schema {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Schema{"type": "string", "enum": vs}
}

func list(items Schema) Schema {
	return Schema{"type": "array", "items": items}
}

// userSchema is the tagged EventUser variant.
func userSchema() Schema {
	return Schema{"oneOf": []any{
		closed(object(map[string]any{
			"type":  Schema{"const": "dashboard"},
			"id":    str(),
			"email": str(),
			"name":  str(),
		}, "type", "id", "email", "name")),
		closed(object(map[string]any{
			"type":   Schema{"const": "api_key"},
			"apiKey": str(),
		}, "type", "apiKey")),
		closed(object(map[string]any{
			"type": Schema{"const": "system"},
		}, "type")),
	}}
}

func changesSchema() Schema {
	return closed(object(map[string]any{
		"added":    anyObj(),
		"removed":  anyObj(),
		"modified": anyObj(),
	}))
}

func closed(s Schema) Schema {
	s["additionalProperties"] = false
	return s
}

// dataSchema builds the schema of payload.data for an entry. The legal shape
// is decided by the entry, never by the caller:
//
//   - diff, read:  {object, previous_attributes, changes?}
//   - diff, write: {object}
//   - extra:       {object, <extra properties>}
//   - plain:       {object}
func dataSchema(e Entry, mode Mode) Schema {
	props := map[string]any{"object": e.PayloadSchema}
	required := []string{"object"}

	switch {
	case e.IsDiff && mode == OnRead:
		props["previous_attributes"] = anyObj()
		props["changes"] = changesSchema()
		required = append(required, "previous_attributes")
	case e.ExtraSchema != nil:
		if extra, ok := e.ExtraSchema["properties"].(map[string]any); ok {
			for k, v := range extra {
				props[k] = v
			}
		}
		if req, ok := e.ExtraSchema["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}

	return closed(object(props, required...))
}

// payloadSchema builds the schema of a full notification payload.
func payloadSchema(e Entry, mode Mode) Schema {
	return closed(object(map[string]any{
		"event":           Schema{"const": e.Name.String()},
		"object":          Schema{"const": string(e.Name.Resource)},
		"api_version":     str(),
		"created":         Schema{"type": "integer", "minimum": 0},
		"data":            dataSchema(e, mode),
		"user":            userSchema(),
		"projects":        strList(),
		"tags":            strList(),
		"environments":    strList(),
		"containsSecrets": boolean(),
	}, "event", "object", "api_version", "created", "data", "user",
		"projects", "tags", "environments", "containsSecrets"))
}
