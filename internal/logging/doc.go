// Package logging provides structured logging for the index engine and
// its tools.
//
// Logger is a small key-value interface backed by log/slog handlers:
//
//	log := logging.New(logging.Config{Level: "debug", Format: "json"})
//	log = log.WithRequestID(logging.GenerateRequestID())
//	log.Warn("index trust demoted", "index", "cn.equality", "entryID", 42)
//
// Use NewNop in tests and wherever a caller passes no logger.
package logging
