// Package version reports the build version that asyncify stamps on its
// OpenTelemetry resources.
//
//	go build -ldflags "-X github.com/kbukum/asyncify/version.Version=v1.0.0"
package version
