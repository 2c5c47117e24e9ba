package marshal

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/workflow-core/internal/objectstore"
	"github.com/gorax/workflow-core/internal/value"
)

func TestAPIToRuntime_ScalarPassthrough(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()

	s, err := APIToRuntime(ctx, value.TypeString, value.String("hi"), store)
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	n, err := APIToRuntime(ctx, value.TypeNumber, value.Number(3.5), store)
	require.NoError(t, err)
	assert.Equal(t, 3.5, n)

	b, err := APIToRuntime(ctx, value.TypeBoolean, value.Bool(true), store)
	require.NoError(t, err)
	assert.Equal(t, true, b)
}

func TestAPIToRuntime_JSONPassthrough(t *testing.T) {
	store := objectstore.NewMemoryStore()
	raw := map[string]any{"a": 1.0}

	out, err := APIToRuntime(context.Background(), value.TypeJSON, value.JSON(raw), store)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestAPIToRuntime_BinaryFetchesFromStore(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	id, err := store.Put(ctx, "org-1", "exec-1", "image/png", "", strings.NewReader("pngdata"))
	require.NoError(t, err)

	wire := value.Blob(value.BlobReference{ID: id, MimeType: "image/png"})
	out, err := APIToRuntime(ctx, value.TypeImage, wire, store)
	require.NoError(t, err)

	bin, ok := out.(RuntimeBinary)
	require.True(t, ok)
	assert.Equal(t, "pngdata", string(bin.Data))
	assert.Equal(t, "image/png", bin.MimeType)
}

func TestAPIToRuntime_BinaryRequiresBlobKind(t *testing.T) {
	store := objectstore.NewMemoryStore()
	_, err := APIToRuntime(context.Background(), value.TypeImage, value.String("not a blob"), store)
	require.Error(t, err)
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestAPIToRuntime_BinaryUnknownBlobIDFails(t *testing.T) {
	store := objectstore.NewMemoryStore()
	wire := value.Blob(value.BlobReference{ID: "nonexistent"})
	_, err := APIToRuntime(context.Background(), value.TypeImage, wire, store)
	require.Error(t, err)
	var invalid *InvalidInputError
	assert.ErrorAs(t, err, &invalid)
}

func TestAPIToRuntime_UnsupportedTypeFails(t *testing.T) {
	store := objectstore.NewMemoryStore()
	_, err := APIToRuntime(context.Background(), value.Type("bogus"), value.Value{}, store)
	require.Error(t, err)
}

func TestRuntimeToAPI_ScalarRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()

	v, err := RuntimeToAPI(ctx, value.TypeString, "hi", store, "org-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, value.String("hi"), v)

	v, err = RuntimeToAPI(ctx, value.TypeNumber, 4.2, store, "org-1", "exec-1")
	require.NoError(t, err)
	assert.Equal(t, value.Number(4.2), v)
}

func TestRuntimeToAPI_BinaryWritesToStoreAndReturnsBlobReference(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()

	bin := RuntimeBinary{Data: []byte("pngdata"), MimeType: "image/png"}
	v, err := RuntimeToAPI(ctx, value.TypeImage, bin, store, "org-1", "exec-1")
	require.NoError(t, err)
	require.Equal(t, value.TypeBlob, v.Kind)
	assert.Equal(t, "image/png", v.Blob.MimeType)

	rc, mimeType, err := store.Get(ctx, v.Blob.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "image/png", mimeType)
}

func TestRuntimeToAPI_BinaryWrongRuntimeTypeFails(t *testing.T) {
	store := objectstore.NewMemoryStore()
	_, err := RuntimeToAPI(context.Background(), value.TypeImage, "not binary", store, "org-1", "exec-1")
	require.Error(t, err)
}

func TestAPIToRuntimeSequence_AppliesElementWise(t *testing.T) {
	store := objectstore.NewMemoryStore()
	wire := []value.Value{value.String("a"), value.String("b")}

	out, err := APIToRuntimeSequence(context.Background(), value.TypeString, wire, store)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestAPIToRuntimeSequence_PropagatesElementError(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	id, err := store.Put(ctx, "org-1", "exec-1", "image/png", "", strings.NewReader("pngdata"))
	require.NoError(t, err)

	wire := []value.Value{
		value.Blob(value.BlobReference{ID: id, MimeType: "image/png"}),
		value.Blob(value.BlobReference{ID: "nonexistent"}),
	}

	_, err = APIToRuntimeSequence(ctx, value.TypeImage, wire, store)
	require.Error(t, err)
}
