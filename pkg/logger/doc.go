// Package logger builds configured slog.Logger instances with sane
// defaults: JSON output at info level for production, switchable to a
// human-readable text format for development.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithService("worker"),
//	    logger.WithLevel(slog.LevelDebug),
//	)
//	logger.SetAsDefault(log)
package logger
