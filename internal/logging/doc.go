// Package logging provides structured logging for careerd.
//
// The package wraps Zap with:
//   - a custom Trace level (-2, below Debug)
//   - stdout output with optional OpenTelemetry log export
//   - automatic context fields (trace_id, user.id, request.id)
//   - secret redaction by field name and value pattern
//   - level-aware sampling where errors are never sampled
//
// Usage:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithUserID(ctx, "u-42")
//	logger.Info(ctx, "profile stored", zap.String("doc_id", id))
//
// Tests use NewTestLogger, which records entries in memory:
//
//	tl := logging.NewTestLogger()
//	svc := service.New(..., tl.Logger)
//	tl.AssertLogged(t, zapcore.WarnLevel, "generation failed")
package logging
