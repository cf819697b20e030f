package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

// GenerateSchema reflects T into a closed JSON schema: every property required, no extras.
func GenerateSchema[T any]() (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("GenerateSchema: marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("GenerateSchema: unmarshal: %w", err)
	}
	closeObjects(m)
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

func closeObjects(schema map[string]any) {
	if t, ok := schema[typeKey].(string); ok && t == "object" {
		schema[additionalPropertiesKey] = false
		if props, ok := schema[propertiesKey].(map[string]any); ok && len(props) > 0 {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			schema[requiredKey] = required
		}
	}
	if props, ok := schema[propertiesKey].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				closeObjects(pm)
			}
		}
	}
	if items, ok := schema[itemsKey].(map[string]any); ok {
		closeObjects(items)
	}
}

// WriteSchema writes the JSON schema of Document to path.
func WriteSchema(path string, overwrite bool) error {
	m, err := GenerateSchema[Document]()
	if err != nil {
		return err
	}
	if err := fileutils.CheckWritable(path, overwrite); err != nil {
		return fmt.Errorf("WriteSchema: %w", err)
	}
	return fileutils.WriteJSONFileAtomic(path, m, true)
}

const documentSchemaURL = "https://digest-o-bot.local/schema/report-document.json"

var documentSchema = sync.OnceValues(func() (*validator.Schema, error) {
	m, err := GenerateSchema[Document]()
	if err != nil {
		return nil, err
	}
	delete(m, "$id")
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("document schema: marshal: %w", err)
	}
	doc, err := validator.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("document schema: %w", err)
	}
	c := validator.NewCompiler()
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("document schema: %w", err)
	}
	return c.Compile(documentSchemaURL)
})

// ValidateDocument checks raw report JSON against the closed schema of Document.
func ValidateDocument(raw []byte) error {
	sch, err := documentSchema()
	if err != nil {
		return err
	}
	inst, err := validator.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("ValidateDocument: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("ValidateDocument: %w", err)
	}
	return nil
}
