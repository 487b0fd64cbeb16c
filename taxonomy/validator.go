package taxonomy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// PayloadValidator checks full notification payloads for one event type.
type PayloadValidator struct {
	name   Name
	mode   Mode
	schema *jsonschema.Schema
}

func compile(e Entry, mode Mode) (*PayloadValidator, error) {
	doc, err := toJSONValue(payloadSchema(e, mode))
	if err != nil {
		return nil, fmt.Errorf("taxonomy: %s schema: %w", e.Name, err)
	}

	url := "notify://taxonomy/" + e.Name.String() + "/" + mode.String()

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("taxonomy: add %s schema: %w", e.Name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: compile %s schema: %w", e.Name, err)
	}

	return &PayloadValidator{name: e.Name, mode: mode, schema: compiled}, nil
}

// Validate checks payload, any JSON-encodable value, against the schema.
// Failures wrap ErrSchemaValidation.
func (v *PayloadValidator) Validate(payload any) error {
	doc, err := toJSONValue(payload)
	if err != nil {
		return fmt.Errorf("%w: %s: encode payload: %v", ErrSchemaValidation, v.name, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s (%s): %v", ErrSchemaValidation, v.name, v.mode, err)
	}
	return nil
}

// toJSONValue round-trips v through JSON into the generic form the
// validator expects (numbers as json.Number).
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(raw))
}
