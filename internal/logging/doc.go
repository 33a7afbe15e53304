// Package logging provides structured JSON logging with size-based file
// rotation, plus a viewer for tailing and filtering the resulting logs.
//
// All subsystems log through slog. Setup wires a JSON handler to a
// rotating file writer, optionally mirrored to stderr.
package logging
