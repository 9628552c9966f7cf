package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessEvents starts spans for domain operations (a message sent, a post
// liked) beneath the HTTP span
type BusinessEvents struct {
	tracer trace.Tracer
}

// NewBusinessEvents creates a tracer bound to the global provider
func NewBusinessEvents() *BusinessEvents {
	return &BusinessEvents{tracer: otel.Tracer("business-events")}
}

// TraceSendMessage creates a span around a direct message send
func (be *BusinessEvents) TraceSendMessage(ctx context.Context, senderID, receiverID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "messaging.send",
		trace.WithAttributes(
			attribute.String("user.id", senderID),
			attribute.String("receiver.id", receiverID),
		),
	)
}

// TraceSocialInteraction creates a span for like, comment and follow actions
func (be *BusinessEvents) TraceSocialInteraction(ctx context.Context, action, userID, targetID string) (context.Context, trace.Span) {
	return be.tracer.Start(ctx, "social."+action,
		trace.WithAttributes(
			attribute.String("action.type", action),
			attribute.String("user.id", userID),
			attribute.String("target.id", targetID),
		),
	)
}

// RecordDispatch annotates span with the number of live handles reached
func RecordDispatch(span trace.Span, delivered int) {
	span.SetAttributes(
		attribute.Int("notification.delivered", delivered),
		attribute.Bool("notification.sent", delivered > 0),
	)
}

// EndSpan records err on span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
