// Package wire is the JSON boundary format for graph submission, graph
// diffs and graph dumps (spec §6). Its structs carry validator tags and
// are schema-checked before being decoded into pkg/umrf/pkg/graph domain
// types, which never know about JSON at all.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"

	"github.com/temoto-action-engine/actionengine/pkg/diff"
	"github.com/temoto-action-engine/actionengine/pkg/engineerr"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

// ParameterDTO is the wire shape of one Parameter.
type ParameterDTO struct {
	Name          string   `json:"name"           validate:"required"`
	Type          string   `json:"type"           validate:"required"`
	Required      bool     `json:"required"`
	Updatable     bool     `json:"updatable"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Value         string   `json:"value,omitempty"`
}

// RelationDTO is the wire shape of one parent/child relation.
type RelationDTO struct {
	Name     string `json:"name"   validate:"required"`
	Suffix   uint   `json:"suffix"`
	Required bool   `json:"required"`
}

// NodeDTO is the wire shape of one UMRF node, per spec §6's informative
// JSON schema.
type NodeDTO struct {
	Name             string         `json:"name"                  validate:"required"`
	Suffix           uint           `json:"suffix"`
	PackageName      string         `json:"package_name,omitempty"`
	Description      string         `json:"description,omitempty"`
	Notation         string         `json:"notation,omitempty"`
	Effect           string         `json:"effect"                validate:"required,oneof=synchronous asynchronous"`
	LibraryPath      string         `json:"library_path"          validate:"required"`
	Parents          []RelationDTO  `json:"parents,omitempty"`
	Children         []RelationDTO  `json:"children,omitempty"`
	InputParameters  []ParameterDTO `json:"input_parameters,omitempty"`
	OutputParameters []ParameterDTO `json:"output_parameters,omitempty"`
}

// GraphDTO is the wire shape of a full graph submission.
type GraphDTO struct {
	Name  string    `json:"name" validate:"required"`
	Nodes []NodeDTO `json:"nodes" validate:"required,min=1,dive"`
}

// DiffDTO is the wire shape of one GraphDiff entry.
type DiffDTO struct {
	Operation      string      `json:"operation" validate:"required,oneof=add_umrf remove_umrf add_child remove_child"`
	Node           NodeDTO     `json:"umrf"`
	ParentFullName string      `json:"parent_full_name,omitempty"`
	Child          RelationDTO `json:"child,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// graphSchema is the informative JSON schema from spec §6, expressed as a
// Go value the way the teacher's Kafka provider builds its schema maps for
// gojsonschema.NewGoLoader instead of reading a .json file off disk.
var graphSchema = map[string]any{
	"type":     "object",
	"required": []string{"name", "nodes"},
	"properties": map[string]any{
		"name": map[string]any{"type": "string"},
		"nodes": map[string]any{
			"type":  "array",
			"items": nodeSchema,
		},
	},
}

var relationSchema = map[string]any{
	"type":     "object",
	"required": []string{"name"},
	"properties": map[string]any{
		"name":     map[string]any{"type": "string"},
		"suffix":   map[string]any{"type": "integer"},
		"required": map[string]any{"type": "boolean"},
	},
}

var parameterSchema = map[string]any{
	"type":     "object",
	"required": []string{"name", "type"},
	"properties": map[string]any{
		"name":           map[string]any{"type": "string"},
		"type":           map[string]any{"type": "string"},
		"required":       map[string]any{"type": "boolean"},
		"updatable":      map[string]any{"type": "boolean"},
		"allowed_values": map[string]any{"type": "array"},
		"value":          map[string]any{"type": "string"},
	},
}

var nodeSchema = map[string]any{
	"type":     "object",
	"required": []string{"name", "effect", "library_path"},
	"properties": map[string]any{
		"name":              map[string]any{"type": "string"},
		"suffix":            map[string]any{"type": "integer"},
		"package_name":      map[string]any{"type": "string"},
		"description":       map[string]any{"type": "string"},
		"notation":          map[string]any{"type": "string"},
		"effect":            map[string]any{"type": "string", "enum": []string{"synchronous", "asynchronous"}},
		"library_path":      map[string]any{"type": "string"},
		"parents":           map[string]any{"type": "array", "items": relationSchema},
		"children":          map[string]any{"type": "array", "items": relationSchema},
		"input_parameters":  map[string]any{"type": "array", "items": parameterSchema},
		"output_parameters": map[string]any{"type": "array", "items": parameterSchema},
	},
}

// validateSchema checks raw JSON shape before attempting struct decode,
// the same two-step (schema then struct-tag) validation the teacher's
// Kafka provider and activator "validate" command perform in sequence.
func validateSchema(raw []byte) error {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return engineerr.Validation("malformed JSON: %v", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(graphSchema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return engineerr.Validation("schema validation error: %v", err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			messages = append(messages, e.String())
		}

		return engineerr.Validation("graph does not match schema: %s", strings.Join(messages, "; "))
	}

	return nil
}

// DecodeGraph validates raw JSON against the graph schema and struct tags,
// then converts it into domain UmrfNodes. Node ids are left zero: the
// executor assigns them at admission.
func DecodeGraph(raw []byte) (name string, nodes []*umrf.UmrfNode, err error) {
	if err := validateSchema(raw); err != nil {
		return "", nil, err
	}

	var dto GraphDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return "", nil, engineerr.Validation("malformed graph JSON: %v", err)
	}

	if err := validate.Struct(dto); err != nil {
		return "", nil, engineerr.Validation("graph failed field validation: %v", err)
	}

	out := make([]*umrf.UmrfNode, 0, len(dto.Nodes))
	for _, nodeDTO := range dto.Nodes {
		out = append(out, nodeFromDTO(nodeDTO))
	}

	return dto.Name, out, nil
}

func nodeFromDTO(d NodeDTO) *umrf.UmrfNode {
	n := umrf.NewUmrfNode(d.Name, d.LibraryPath)
	n.Suffix = d.Suffix
	n.PackageName = d.PackageName
	n.Description = d.Description
	n.Notation = d.Notation
	n.Effect = d.Effect

	for _, r := range d.Parents {
		n.Parents = append(n.Parents, umrf.Relation{Name: r.Name, Suffix: r.Suffix, Required: r.Required})
	}

	for _, r := range d.Children {
		n.Children = append(n.Children, umrf.Relation{Name: r.Name, Suffix: r.Suffix, Required: r.Required})
	}

	for _, p := range d.InputParameters {
		n.Input.Set(parameterFromDTO(p))
	}

	for _, p := range d.OutputParameters {
		n.Output.Set(parameterFromDTO(p))
	}

	return n
}

func parameterFromDTO(p ParameterDTO) umrf.Parameter {
	var data []byte
	if p.Value != "" {
		data = []byte(p.Value)
	}

	return umrf.Parameter{
		Name:          p.Name,
		Type:          p.Type,
		Required:      p.Required,
		Updatable:     p.Updatable,
		AllowedValues: p.AllowedValues,
		Data:          data,
	}
}

// EncodeNode renders a node descriptor back to its wire shape. Graph dumps
// (ActionExecutor.GraphDescriptors) do not use it; they render each graph
// with its human-readable String form.
func EncodeNode(n *umrf.UmrfNode) ([]byte, error) {
	dto := NodeDTO{
		Name:        n.Name,
		Suffix:      n.Suffix,
		PackageName: n.PackageName,
		Description: n.Description,
		Notation:    n.Notation,
		Effect:      n.Effect,
		LibraryPath: n.LibraryPath,
	}

	for _, r := range n.Parents {
		dto.Parents = append(dto.Parents, RelationDTO{Name: r.Name, Suffix: r.Suffix, Required: r.Required})
	}

	for _, r := range n.Children {
		dto.Children = append(dto.Children, RelationDTO{Name: r.Name, Suffix: r.Suffix, Required: r.Required})
	}

	n.Input.Each(func(p umrf.Parameter) {
		dto.InputParameters = append(dto.InputParameters, parameterToDTO(p))
	})
	n.Output.Each(func(p umrf.Parameter) {
		dto.OutputParameters = append(dto.OutputParameters, parameterToDTO(p))
	})

	raw, err := json.Marshal(dto)
	if err != nil {
		return nil, fmt.Errorf("encoding node %q: %w", n.FullName(), err)
	}

	return raw, nil
}

func parameterToDTO(p umrf.Parameter) ParameterDTO {
	return ParameterDTO{
		Name:          p.Name,
		Type:          p.Type,
		Required:      p.Required,
		Updatable:     p.Updatable,
		AllowedValues: p.AllowedValues,
		Value:         string(p.Data),
	}
}

// DecodeDiffs converts a wire DiffDTO sequence into domain GraphDiffs.
func DecodeDiffs(raw []byte) ([]diff.GraphDiff, error) {
	var dtos []DiffDTO
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, engineerr.Validation("malformed diff JSON: %v", err)
	}

	out := make([]diff.GraphDiff, 0, len(dtos))

	for _, d := range dtos {
		gd := diff.GraphDiff{
			Operation:      diff.Operation(d.Operation),
			ParentFullName: d.ParentFullName,
			Child:          umrf.Relation{Name: d.Child.Name, Suffix: d.Child.Suffix, Required: d.Child.Required},
		}

		if d.Operation == string(diff.AddUmrf) || d.Operation == string(diff.RemoveUmrf) {
			gd.Node = nodeFromDTO(d.Node)
		}

		if err := gd.Validate(); err != nil {
			return nil, engineerr.Validation("invalid diff entry: %v", err)
		}

		out = append(out, gd)
	}

	return out, nil
}
