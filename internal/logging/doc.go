// Package logging provides structured logging for memoryforge.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (project, session, request)
//   - Defense-in-depth secret redaction
//   - Level-aware sampling (errors never sampled)
//
// # Usage
//
// Create logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context:
//
//	ctx := logging.WithProject(ctx, &logging.Project{ID: "proj_api", Name: "api"})
//	ctx = logging.WithSessionID(ctx, "sess_123")
//	logger.Info(ctx, "memory stored", zap.Duration("duration", d))
//
// Output includes automatic correlation (caller and constant fields such
// as "service" omitted here):
//
//	{
//	  "ts": "2026-07-31T10:15:30.000Z",
//	  "level": "info",
//	  "msg": "memory stored",
//	  "project.id": "proj_api",
//	  "project.name": "api",
//	  "session.id": "sess_123",
//	  "duration": 0.045
//	}
//
// # Configuration
//
// Config carries koanf tags, but package config does not load a logging
// section from config.yaml or the environment: the daemon builds its
// logger from NewDefaultConfig, and any change is made on the returned
// Config in code.
//
// # Secret Redaction
//
// Secrets are redacted at multiple layers:
//  1. Domain primitives (config.Secret type)
//  2. Encoder-level field name filtering
//  3. Encoder-level pattern matching
//
// Use helpers for manual redaction:
//
//	logger.Info(ctx, "sync key loaded",
//	    logging.RedactedString("sync_key", key))
//
// # Sampling
//
// Sampling prevents log floods:
//   - Trace, Debug, Info and Warn share one sampler whose rate comes from
//     the Info entry of Sampling.Levels (default: first 100 per tick, then
//     1 every 10); the Trace, Debug and Warn entries are not applied
//   - Error+: never sampled
//
// Disable for debugging:
//
//	cfg.Sampling.Enabled = false
//
// # Testing
//
// Use TestLogger for test assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
//	tl.AssertNoSecrets(t)
//
// # Concurrency Safety
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
