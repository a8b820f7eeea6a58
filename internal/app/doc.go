// Package app assembles the pipeline from configuration.
//
// NewApplication initialises logging and OpenTelemetry, loads the
// categorical mappings, registers the pipeline steps and builds the run
// manager with a run log kept in the pipeline database. The one-shot
// commands call RunPipeline or RunStep; the serve command calls Serve,
// which runs the cron scheduler and the HTTP API side by side until its
// context ends.
package app
