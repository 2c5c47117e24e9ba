// Package marshal converts between the "wire" value representation
// (small primitives + opaque BlobReferences) and the "runtime"
// representation (decoded values, binary payloads as bytes+mimeType),
// Binary semantic types round-trip through an
// objectstore.Store; everything else passes through unchanged.
package marshal

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gorax/workflow-core/internal/objectstore"
	"github.com/gorax/workflow-core/internal/value"
)

// InvalidInputError is returned when a wire value cannot be interpreted
// for its declared type — e.g. an unknown blob id.
type InvalidInputError struct{ Msg string }

func (e *InvalidInputError) Error() string { return e.Msg }

// RuntimeBinary is the runtime-side shape of a binary value: decoded
// bytes plus its mime type.
type RuntimeBinary struct {
	Data []byte
	MimeType string
}

// APIToRuntime decodes a wire Value into its runtime representation for
// the given semantic type. Binary types fetch bytes from store; scalar
// and JSON types pass through.
func APIToRuntime(ctx context.Context, t value.Type, wire value.Value, store objectstore.Store) (any, error) {
	if t.IsBinary() {
		if wire.Kind != value.TypeBlob {
			return nil, &InvalidInputError{Msg: fmt.Sprintf("expected blob reference for type %q", t)}
		}
		r, mimeType, err := store.Get(ctx, wire.Blob.ID)
		if err != nil {
			return nil, &InvalidInputError{Msg: fmt.Sprintf("unknown blob id %q: %v", wire.Blob.ID, err)}
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("marshal: read blob %q: %w", wire.Blob.ID, err)
		}
		if mimeType == "" {
			mimeType = wire.Blob.MimeType
		}
		return RuntimeBinary{Data: data, MimeType: mimeType}, nil
	}

	switch t {
	case value.TypeString:
		return wire.Str, nil
	case value.TypeNumber:
		return wire.Num, nil
	case value.TypeBoolean:
		return wire.Bool, nil
	case value.TypeJSON, value.TypeGeoJSON:
		return wire.Raw, nil
	default:
		return nil, &InvalidInputError{Msg: fmt.Sprintf("unsupported semantic type %q", t)}
	}
}

// RuntimeToAPI encodes a runtime value back to its wire representation,
// writing bytes to store for binary types.
func RuntimeToAPI(ctx context.Context, t value.Type, runtime any, store objectstore.Store, orgID, executionID string) (value.Value, error) {
	if t.IsBinary() {
		bin, ok := runtime.(RuntimeBinary)
		if !ok {
			return value.Value{}, fmt.Errorf("marshal: expected RuntimeBinary for type %q, got %T", t, runtime)
		}
		id, err := store.Put(ctx, orgID, executionID, bin.MimeType, "", bytes.NewReader(bin.Data))
		if err != nil {
			return value.Value{}, fmt.Errorf("marshal: write blob: %w", err)
		}
		return value.Blob(value.BlobReference{ID: id, MimeType: bin.MimeType}), nil
	}

	switch t {
	case value.TypeString:
		s, _ := runtime.(string)
		return value.String(s), nil
	case value.TypeNumber:
		n, _ := runtime.(float64)
		return value.Number(n), nil
	case value.TypeBoolean:
		b, _ := runtime.(bool)
		return value.Bool(b), nil
	case value.TypeJSON, value.TypeGeoJSON:
		return value.JSON(runtime), nil
	default:
		return value.Value{}, &InvalidInputError{Msg: fmt.Sprintf("unsupported semantic type %q", t)}
	}
}

// APIToRuntimeSequence applies APIToRuntime element-wise to a fan-in
// sequence.
func APIToRuntimeSequence(ctx context.Context, t value.Type, wire []value.Value, store objectstore.Store) ([]any, error) {
	out := make([]any, len(wire))
	for i, v := range wire {
		r, err := APIToRuntime(ctx, t, v, store)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
