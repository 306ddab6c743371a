// Package logger wraps zerolog with the conventions asyncify packages share:
// a Config loadable through the config package, console or json output,
// component-tagged child loggers and a small set of standard field keys.
//
//	log := logger.New(&logger.Config{Level: "debug", Format: "json"}, "ingest")
//	log.WithComponent("bridge").Info("closed", logger.Fields(logger.FieldPending, 0))
//
// Register a logger under "bridge" to redirect every bridge created without
// an explicit logger.
package logger
