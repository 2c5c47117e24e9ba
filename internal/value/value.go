// Package value defines the runtime value model shared by every
// component of the execution core: blob references, semantic parameter
// types, and the node-to-node value maps that flow through execution state.
package value

import "fmt"

// Type is the semantic tag carried by every ParameterSpec. It drives the
// marshaler's dispatch table (internal/marshal) instead of relying on
// dynamic typeof checks at runtime.
type Type string

const (
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeBoolean Type = "boolean"
	TypeJSON Type = "json"
	TypeImage Type = "image"
	TypeAudio Type = "audio"
	TypeVideo Type = "video"
	TypeDocument Type = "document"
	TypeGeoJSON Type = "geojson"
	TypeBlob Type = "blob"
)

// IsBinary() reports whether values of this type are carried as bytes behind
// a BlobReference rather than inlined on the wire.
func (t Type) IsBinary() bool {
	switch t {
	case TypeImage, TypeAudio, TypeVideo, TypeDocument, TypeBlob:
		return true
	default:
		return false
	}
}

func (t Type) Valid() bool {
	switch t {
		case TypeString, TypeNumber, TypeBoolean, TypeJSON, TypeImage, TypeAudio,
		TypeVideo, TypeDocument, TypeGeoJSON, TypeBlob:
		return true
	default:
		return false
	}
}

// BlobReference points to bytes held by an object store. It never inlines
// bytes; it is the only way large binary data crosses the execution state.
type BlobReference struct {
	ID string `json:"id"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename,omitempty"`
}

func (b BlobReference) String() string {
	return fmt.Sprintf("blob(%s,%s)", b.ID, b.MimeType)
}

// ParameterSpec describes one named input or output of a NodeSpec.
type ParameterSpec struct {
	Name string `json:"name"`
	Type Type `json:"type"`
	Required bool `json:"required"`
	Default *Value `json:"default,omitempty"`
	Hidden bool `json:"hidden,omitempty"`
	// FanIn marks a sequence-valued input: more than one edge may target
	// it, and the marshaler/executor build an ordered slice of values
	// rather than rejecting the duplicate (target, targetInput) pair.
	FanIn bool `json:"fanIn,omitempty"`
}

// Value is a runtime value: one of string, number, boolean, BlobReference,
// JSON array, or JSON object. Exactly one field is populated; Kind says
// which. All variants are JSON-serializable.
type Value struct {
	Kind Type

	Str string
	Num float64
	Bool bool
	Blob BlobReference
	Array []Value
	Obj map[string]any
	// Raw holds arbitrary JSON for TypeJSON/TypeGeoJSON values that are
	// not one of the other shapes (scalars handled above).
	Raw any
}

func String(s string) Value { return Value{Kind: TypeString, Str: s} }
func Number(n float64) Value { return Value{Kind: TypeNumber, Num: n} }
func Bool(b bool) Value { return Value{Kind: TypeBoolean, Bool: b} }
func Blob(b BlobReference) Value {
	return Value{Kind: TypeBlob, Blob: b}
}
func JSON(v any) Value { return Value{Kind: TypeJSON, Raw: v} }

// Sequence wraps element values for a fan-in input.
type Sequence struct {
	Values []Value
}

// NodeRuntimeValues maps parameter name to either a single Value or, for
// fan-in inputs, a Sequence of Values in edge order.
type NodeRuntimeValues map[string]any

// Get returns the single Value bound to name, or ok=false if absent or if
// the slot holds a Sequence instead.
func (v NodeRuntimeValues) Get(name string) (Value, bool) {
	raw, found := v[name]
	if !found {
		return Value{}, false
	}
	val, ok := raw.(Value)
	return val, ok
}

// GetSequence returns the ordered values bound to a fan-in input.
func (v NodeRuntimeValues) GetSequence(name string) (Sequence, bool) {
	raw, found := v[name]
	if !found {
		return Sequence{}, false
	}
	seq, ok := raw.(Sequence)
	return seq, ok
}

// WorkflowRuntimeState maps node id to its produced outputs only; inputs
// are always recomputed from edges plus this map, never stored directly.
type WorkflowRuntimeState map[string]NodeRuntimeValues
