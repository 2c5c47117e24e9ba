package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupExecutorTestTracer(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		otel.SetTracerProvider(originalTP)
		tp.Shutdown(context.Background())
	}

	return exporter, cleanup
}

func TestTraceWorkflowExecution_Success(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	executed := false
	err := TraceWorkflowExecution(
		context.Background(),
		"org-123",
		"workflow-456",
		"execution-789",
		func(ctx context.Context) error {
			executed = true
			traceID := GetTraceID(ctx)
			assert.NotEmpty(t, traceID)
			return nil
		},
	)

	assert.NoError(t, err)
	assert.True(t, executed)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)
	assert.Equal(t, "workflow.execute", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestTraceWorkflowExecution_Error(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	expectedErr := errors.New("workflow failed")
	err := TraceWorkflowExecution(
		context.Background(),
		"org-123",
		"workflow-456",
		"execution-789",
		func(ctx context.Context) error {
			return expectedErr
		},
	)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestTraceNodeExecution_Success(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	expectedOutput := map[string]any{"node_output": "data"}
	output, err := TraceNodeExecution(
		context.Background(),
		"node-abc",
		"action.transform",
		func(ctx context.Context) (any, error) {
			traceID := GetTraceID(ctx)
			assert.NotEmpty(t, traceID)
			return expectedOutput, nil
		},
	)

	assert.NoError(t, err)
	assert.Equal(t, expectedOutput, output)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)
	assert.Equal(t, "workflow.node.action.transform", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestTraceNodeExecution_Error(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	expectedErr := errors.New("node execution failed")
	output, err := TraceNodeExecution(
		context.Background(),
		"node-xyz",
		"action.code",
		func(ctx context.Context) (any, error) {
			return nil, expectedErr
		},
	)

	assert.Error(t, err)
	assert.Nil(t, output)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestTraceRetryAttempt_Success(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	executed := false
	err := TraceRetryAttempt(
		context.Background(),
		"node-retry",
		1,
		3,
		func(ctx context.Context) error {
			executed = true
			traceID := GetTraceID(ctx)
			assert.NotEmpty(t, traceID)
			return nil
		},
	)

	assert.NoError(t, err)
	assert.True(t, executed)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)
	assert.Equal(t, "workflow.retry.attempt", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestTraceRetryAttempt_Error(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	expectedErr := errors.New("attempt failed")
	err := TraceRetryAttempt(
		context.Background(),
		"node-retry",
		2,
		3,
		func(ctx context.Context) error {
			return expectedErr
		},
	)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestRecordErrorWithStackTrace(t *testing.T) {
	_, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	_, span := StartSpan(context.Background(), "test-operation")
	defer span.End()

	testErr := errors.New("test error with stack trace")
	RecordErrorWithStackTrace(span, testErr)

	assert.True(t, span.SpanContext().IsValid())
}

func TestRecordErrorWithStackTrace_NilError(t *testing.T) {
	_, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	_, span := StartSpan(context.Background(), "test-operation")
	defer span.End()

	RecordErrorWithStackTrace(span, nil)

	assert.True(t, span.SpanContext().IsValid())
}

func TestCaptureStackTrace(t *testing.T) {
	stackTrace := captureStackTrace(1)

	assert.Contains(t, stackTrace, "TestCaptureStackTrace")
	assert.Contains(t, stackTrace, "executor_test.go")
}

func TestRecordWorkflowEvent(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	ctx, span := StartSpan(context.Background(), "test-operation")

	RecordWorkflowEvent(ctx, "test.event", map[string]any{
			"key_string": "value",
			"key_int": 42,
			"key_bool": true,
			"key_float": 3.14,
	})

	span.End()

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)
	assert.Len(t, spans[0].Events, 1)
	assert.Equal(t, "test.event", spans[0].Events[0].Name)
}

func TestAddWorkflowAttributes(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	ctx, span := StartSpan(context.Background(), "test-operation")

	AddWorkflowAttributes(ctx, map[string]any{
			"custom_attr": "custom_value",
			"count": 100,
	})

	span.End()

	spans := exporter.GetSpans()
	assert.Len(t, spans, 1)

	attrMap := make(map[string]any)
	for _, attr := range spans[0].Attributes {
		attrMap[string(attr.Key)] = attr.Value.AsInterface()
	}

	assert.Equal(t, "custom_value", attrMap["custom_attr"])
	assert.Equal(t, int64(100), attrMap["count"])
}

func TestTraceContextPropagation(t *testing.T) {
	exporter, cleanup := setupExecutorTestTracer(t)
	defer cleanup()

	var parentTraceID string
	err := TraceWorkflowExecution(
		context.Background(),
		"org-123",
		"workflow-parent",
		"execution-parent",
		func(parentCtx context.Context) error {
			parentTraceID = GetTraceID(parentCtx)

			_, err := TraceNodeExecution(
				parentCtx,
				"node-1",
				"action.http",
				func(stepCtx context.Context) (any, error) {
					childTraceID := GetTraceID(stepCtx)
					assert.Equal(t, parentTraceID, childTraceID)
					return nil, nil
				},
			)
			return err
		},
	)

	assert.NoError(t, err)
	assert.NotEmpty(t, parentTraceID)

	spans := exporter.GetSpans()
	assert.Len(t, spans, 2)
	assert.Equal(t, spans[0].SpanContext.TraceID, spans[1].SpanContext.TraceID)
}
