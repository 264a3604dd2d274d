package tools

import "google.golang.org/genai"

// Tool names as the agent calls them.
const (
	RotateView         = "rotate_view"
	StepForward        = "step_forward"
	JumpToLocation     = "jump_to_location"
	FocusOnObject      = "focus_on_object"
	FetchLocationFacts = "fetch_location_facts"
	RequestSelfie      = "request_selfie"
)

// Kind is the JSON kind of a tool parameter.
type Kind string

const (
	KindNumber Kind = "number"
	KindString Kind = "string"
)

// Param describes a single tool argument and its bounds.
type Param struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
	Min         *float64
	Max         *float64
	// NonBlank rejects strings that are empty after trimming whitespace.
	NonBlank bool
}

// Declaration is an immutable tool definition advertised to the agent.
type Declaration struct {
	Name        string
	Description string
	Params      []Param
}

func bound(v float64) *float64 { return &v }

var declarations = []Declaration{
	{
		Name:        RotateView,
		Description: "Rotate the street view camera to an absolute heading and pitch.",
		Params: []Param{
			{Name: "heading", Kind: KindNumber, Required: true, Min: bound(0), Max: bound(360),
				Description: "Compass heading in degrees, 0 is north, 90 is east."},
			{Name: "pitch", Kind: KindNumber, Required: true, Min: bound(-90), Max: bound(90),
				Description: "Vertical angle in degrees, negative looks down, positive looks up."},
		},
	},
	{
		Name:        StepForward,
		Description: "Walk forward along the street in the direction the camera is facing.",
		Params: []Param{
			{Name: "steps", Kind: KindNumber, Required: true, Min: bound(1), Max: bound(5),
				Description: "Number of panorama steps to take, between 1 and 5."},
		},
	},
	{
		Name:        JumpToLocation,
		Description: "Teleport the viewer to a named place, landmark or address.",
		Params: []Param{
			{Name: "location", Kind: KindString, Required: true, NonBlank: true,
				Description: "Place name or address to travel to."},
		},
	},
	{
		Name:        FocusOnObject,
		Description: "Turn the camera towards something described in the current view.",
		Params: []Param{
			{Name: "description", Kind: KindString, Required: true, NonBlank: true,
				Description: "What to look at, for example 'the tower on the left'."},
		},
	},
	{
		Name:        FetchLocationFacts,
		Description: "Get the current position, heading, pitch and address of the viewer.",
	},
	{
		Name:        RequestSelfie,
		Description: "Take a composite selfie of the user at the current location.",
		Params: []Param{
			{Name: "style", Kind: KindString,
				Description: "Optional style hint for the selfie, for example 'postcard'."},
		},
	},
}

// FunctionDeclaration converts the declaration into the Gemini tool schema.
func (d Declaration) FunctionDeclaration() *genai.FunctionDeclaration {
	fd := &genai.FunctionDeclaration{
		Name:        d.Name,
		Description: d.Description,
	}
	if len(d.Params) == 0 {
		return fd
	}

	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(d.Params)),
	}
	for _, p := range d.Params {
		ps := &genai.Schema{Description: p.Description, Minimum: p.Min, Maximum: p.Max}
		switch p.Kind {
		case KindNumber:
			ps.Type = genai.TypeNumber
		case KindString:
			ps.Type = genai.TypeString
		}
		schema.Properties[p.Name] = ps
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	fd.Parameters = schema
	return fd
}

// jsonSchema renders the parameters as a JSON Schema document for validation.
func (d Declaration) jsonSchema() map[string]any {
	props := make(map[string]any, len(d.Params))
	required := []string{}
	for _, p := range d.Params {
		prop := map[string]any{"type": string(p.Kind)}
		if p.Min != nil {
			prop["minimum"] = *p.Min
		}
		if p.Max != nil {
			prop["maximum"] = *p.Max
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
