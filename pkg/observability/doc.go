// Package observability provides OpenTelemetry tracing and metrics for
// sigla services.
//
// # Setup
//
// Initialize the provider at application startup:
//
//	obs, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "sigla-core",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//		Enabled:      true,
//	})
//	defer obs.Shutdown(ctx)
//
// Create spans manually:
//
//	ctx, span := obs.StartSpan(ctx, "operation_name")
//	defer span.End()
//
// # Counters
//
// Record domain counters through the typed helpers:
//
//	obs.RecordEvaluation(ctx, observability.EvaluationAttrs("ind-1.1.1", "PASS")...)
//	obs.RecordTransition(ctx, observability.TransitionAttrs(asmID, "area_submitted", actor)...)
//	obs.RecordSweepAction(ctx, observability.SweepAttrs("reminder", asmID)...)
//
// Components accept the provider through their WithMeters builders and stay
// fully functional without one.
package observability
