// Package flow implements the prompt-flow pipeline behind every AI feature:
// validate the request against an input schema, render the prompt template,
// call the model provider, validate the reply against an output schema, and
// on failure either surface the error or substitute the flow's fallback body.
package flow

import (
	"fmt"
	"sort"
	"text/template"

	"github.com/dreamstone/dreamstone/internal/models"
)

// Field declares one named string field of a flow schema.
type Field struct {
	Name        string
	Required    bool
	Description string
}

// Schema declares the fields of a flow request or response.
type Schema struct {
	Fields []Field
}

// Validate checks a request against the schema. Required fields must be
// present and non-empty after trimming; unknown fields are ignored.
func (s Schema) Validate(req models.FlowRequest) error {
	for _, f := range s.Fields {
		if f.Required && req.Field(f.Name) == "" {
			return fmt.Errorf("missing required field: %s", f.Name)
		}
	}
	return nil
}

// ValidateResponse checks a provider reply against the schema.
func (s Schema) ValidateResponse(resp models.FlowResponse) error {
	for _, f := range s.Fields {
		if f.Required && resp[f.Name] == "" {
			return fmt.Errorf("missing required output field: %s", f.Name)
		}
	}
	return nil
}

// Required returns the names of the schema's required fields.
func (s Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Fallback declares the canned-substitute policy of a flow. Flows carrying a
// Fallback mask provider and output-validation failures with a fixed body
// that quotes the request's SourceField; flows without one propagate errors.
type Fallback struct {
	SourceField string // request field quoted in the fallback body
	TargetField string // output field that receives the fallback body
}

// Definition declares one prompt flow: its schemas, its prompt texts, and
// its failure policy.
type Definition struct {
	Name         string
	Description  string
	Input        Schema
	Output       Schema
	SystemPrompt string
	Template     *template.Template
	Fallback     *Fallback
}

// mustTemplate parses a flow template at registration time.
func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

// registry holds the known flow definitions. It is populated from init
// functions and read-only afterwards.
var registry = make(map[string]*Definition)

// Register associates a flow name with its Definition.
func Register(def *Definition) {
	registry[def.Name] = def
}

// Get retrieves the Definition for a given flow name.
func Get(name string) (*Definition, bool) {
	def, ok := registry[name]
	return def, ok
}

// Definitions returns all registered definitions sorted by name.
func Definitions() []*Definition {
	defs := make([]*Definition, 0, len(registry))
	for _, def := range registry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
