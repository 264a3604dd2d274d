package tools

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"
)

// ErrUnknownTool is returned when a call names a tool that was never declared.
var ErrUnknownTool = errors.New("unknown tool")

// InvalidArgumentsError explains why a tool call's arguments were rejected.
type InvalidArgumentsError struct {
	Tool     string
	Problems []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// Registry holds the declared tools and their compiled argument schemas.
type Registry struct {
	decls   []Declaration
	byName  map[string]int
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry builds the registry of all agent tools.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		decls:   declarations,
		byName:  make(map[string]int, len(declarations)),
		schemas: make(map[string]*gojsonschema.Schema, len(declarations)),
	}
	for i, d := range declarations {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(d.jsonSchema()))
		if err != nil {
			return nil, fmt.Errorf("invalid schema for tool %s: %w", d.Name, err)
		}
		r.byName[d.Name] = i
		r.schemas[d.Name] = schema
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on a malformed declaration.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Declarations returns a copy of the declared tools.
func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, len(r.decls))
	copy(out, r.decls)
	return out
}

// Lookup finds a declaration by name.
func (r *Registry) Lookup(name string) (Declaration, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Declaration{}, false
	}
	return r.decls[i], true
}

// FunctionDeclarations returns the Gemini payload advertising every tool.
func (r *Registry) FunctionDeclarations() []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(r.decls))
	for _, d := range r.decls {
		out = append(out, d.FunctionDeclaration())
	}
	return out
}

// Validate checks args against the named tool's declaration. A nil args
// value is treated as an empty object.
func (r *Registry) Validate(name string, args any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if m, isMap := args.(map[string]any); args == nil || (isMap && m == nil) {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &InvalidArgumentsError{Tool: name, Problems: []string{err.Error()}}
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, r.describe(name, re))
	}
	problems = append(problems, r.blankStrings(name, args)...)
	if len(problems) == 0 {
		return nil
	}
	return &InvalidArgumentsError{Tool: name, Problems: problems}
}

// blankStrings reports non-blank string params that trim to nothing. The
// schema pattern language only knows ASCII whitespace.
func (r *Registry) blankStrings(name string, args any) []string {
	m, ok := args.(map[string]any)
	if !ok {
		return nil
	}
	d, _ := r.Lookup(name)

	var problems []string
	for _, p := range d.Params {
		if !p.NonBlank {
			continue
		}
		if v, isString := m[p.Name].(string); isString && strings.TrimSpace(v) == "" {
			problems = append(problems, p.Name+": must not be blank")
		}
	}
	return problems
}

func (r *Registry) describe(name string, re gojsonschema.ResultError) string {
	field := re.Field()
	if p, ok := re.Details()["property"].(string); ok && re.Type() == "required" {
		return p + ": is required"
	}
	if field == "(root)" && re.Type() == "invalid_type" {
		return "arguments must be an object"
	}

	var param Param
	if d, ok := r.Lookup(name); ok {
		for _, p := range d.Params {
			if p.Name == field {
				param = p
			}
		}
	}
	switch {
	case re.Type() == "invalid_type" && param.Kind != "":
		return fmt.Sprintf("%s: must be a %s", field, param.Kind)
	case re.Type() == "number_gte" && param.Min != nil:
		return fmt.Sprintf("%s: must be >= %s", field, strconv.FormatFloat(*param.Min, 'g', -1, 64))
	case re.Type() == "number_lte" && param.Max != nil:
		return fmt.Sprintf("%s: must be <= %s", field, strconv.FormatFloat(*param.Max, 'g', -1, 64))
	}
	return field + ": " + re.Description()
}
