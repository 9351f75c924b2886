// Package logger provides structured logging built on Uber's zap.
//
// # Architecture
//
// This package follows the "accept interfaces, return structs" design pattern:
//   - Logger interface: Defines the contract for logging operations
//   - LoggerClient struct: Concrete implementation of the Logger interface
//   - NewLoggerClient constructor: Returns *LoggerClient (concrete type)
//   - FX module: Provides both *LoggerClient and Logger interface for dependency injection
//
// Every method takes a message, an optional error and optional field maps:
//
//	log := logger.NewLoggerClient(logger.Config{Level: "debug", EnableTracing: true})
//	log.Info("Index ready", nil, map[string]interface{}{"index": "memories"})
//	log.DebugWithContext(ctx, "request issued", nil, map[string]interface{}{"path": "/query"})
//
// The vector store adapters declare their own narrow Logger interfaces, so a
// *LoggerClient can be handed to any of them (or injected through fx).
package logger
