package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceWorkflowExecution wraps a full workflow run with tracing
func TraceWorkflowExecution(ctx context.Context, organizationID, workflowID, executionID string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, "workflow.execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("organization_id", organizationID),
		attribute.String("workflow_id", workflowID),
		attribute.String("execution_id", executionID),
		attribute.String("component", "scheduler"),
	)

	err := fn(ctx)
	if err != nil {
		RecordErrorWithStackTrace(span, err)
		return err
	}

	span.SetStatus(codes.Ok, "workflow execution completed")
	return nil
}

// TraceNodeExecution wraps a single node execution with tracing
func TraceNodeExecution(ctx context.Context, nodeID, nodeType string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ctx, span := StartSpan(ctx, fmt.Sprintf("workflow.node.%s", nodeType),
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.String("node.type", nodeType),
			attribute.String("component", "nodeexec"),
		),
	)
	defer span.End()

	output, err := fn(ctx)
	if err != nil {
		RecordErrorWithStackTrace(span, err)
		return nil, err
	}

	if outputJSON, jsonErr := json.Marshal(output); jsonErr == nil {
		span.SetAttributes(attribute.Int("node.output_size_bytes", len(outputJSON)))
	}

	span.SetStatus(codes.Ok, "node execution completed")
	return output, nil
}

// TraceRetryAttempt wraps one retry attempt with tracing, the
// retry-with-backoff step.
func TraceRetryAttempt(ctx context.Context, nodeID string, attempt, maxRetries int, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, "workflow.retry.attempt",
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.Int("retry.attempt", attempt),
			attribute.Int("retry.max_retries", maxRetries),
			attribute.String("component", "retry_strategy"),
		),
	)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.SetAttributes(attribute.Bool("retry.will_retry", attempt < maxRetries))
		RecordErrorWithStackTrace(span, err)
		return err
	}

	span.SetStatus(codes.Ok, "attempt succeeded")
	return nil
}

// AddWorkflowAttributes adds workflow-specific attributes to the current span.
func AddWorkflowAttributes(ctx context.Context, attrs map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		SetSpanAttributes(span, attrs)
	}
}

// RecordWorkflowEvent records a workflow event on the current span.
func RecordWorkflowEvent(ctx context.Context, eventName string, attrs map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	var kvAttrs []attribute.KeyValue
	for key, value := range attrs {
		switch v := value.(type) {
		case string:
			kvAttrs = append(kvAttrs, attribute.String(key, v))
		case int:
			kvAttrs = append(kvAttrs, attribute.Int(key, v))
		case int64:
			kvAttrs = append(kvAttrs, attribute.Int64(key, v))
		case float64:
			kvAttrs = append(kvAttrs, attribute.Float64(key, v))
		case bool:
			kvAttrs = append(kvAttrs, attribute.Bool(key, v))
		}
	}
	span.AddEvent(eventName, trace.WithAttributes(kvAttrs...))
}

// RecordErrorWithStackTrace records an error on the span with a stack trace.
func RecordErrorWithStackTrace(span trace.Span, err error) {
	if err == nil || !span.SpanContext().IsValid() {
		return
	}

	stackTrace := captureStackTrace(3) // skip runtime.Callers, captureStackTrace, RecordErrorWithStackTrace

	span.RecordError(err, trace.WithStackTrace(true))
	span.SetAttributes(
		attribute.String("error.message", err.Error()),
		attribute.String("error.stack_trace", stackTrace),
	)
	span.SetStatus(codes.Error, err.Error())
}

func captureStackTrace(skip int) string {
	const maxFrames = 32
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			sb.WriteString(fmt.Sprintf("%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return sb.String()
}
