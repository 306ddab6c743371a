// Package bootstrap wires asyncify's ambient pieces for an application that
// runs bridges.
//
// NewApp turns a loaded config.Config into a logger, OpenTelemetry providers
// and shared bridge instruments. NewBridge builds bridges that use them, and
// Shutdown closes every bridge before flushing the providers.
//
//	cfg, err := config.Load("ingest")
//	app, err := bootstrap.NewApp(ctx, cfg)
//	defer app.Shutdown(ctx)
package bootstrap
