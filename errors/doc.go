// Package errors provides the structured error type shared by asyncify packages.
// Every failure a bridge routes to its error handler is an *AppError carrying a
// machine-readable code, so handlers can tell a listener that failed to
// register apart from one whose completion failed or a close hook that broke.
package errors
