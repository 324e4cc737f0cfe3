// Package serializer implements the Serializer collaborator (spec.md §6):
// turning an application-level value into bytes and back, independent of
// the wire codec's framing.
package serializer

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
)

// Params configures serialization for a message's payload. Per spec.md's
// binary_data_params option, configuration can be global or scoped to a
// specific type+command pair; Params is the per-call resolved value.
type Params struct {
	// TagName overrides the struct tag mapstructure uses when decoding into
	// a target struct (defaults to "json" so the same struct tags serve
	// both encoding/json and mapstructure).
	TagName string
}

// Serializer converts an application value to bytes and back.
type Serializer interface {
	Serialize(value interface{}, params Params) ([]byte, error)
	// Unserialize decodes data into target, which must be a non-nil pointer.
	Unserialize(data []byte, params Params, target interface{}) error
}

// JSONSerializer is the default Serializer: JSON on the wire, decoded into
// caller-supplied typed structs via mapstructure so the core never needs to
// know concrete application payload types.
type JSONSerializer struct{}

// NewJSONSerializer constructs the default serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

func (JSONSerializer) Serialize(value interface{}, _ Params) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONSerializer) Unserialize(data []byte, params Params, target interface{}) error {
	if target == nil {
		return nil
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	tagName := params.TagName
	if tagName == "" {
		tagName = "json"
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: tagName,
		Result:  target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(generic)
}

var _ Serializer = JSONSerializer{}
