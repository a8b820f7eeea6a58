// Package operations runs the lead scoring pipeline as a chain of steps.
//
// The package is built around a small execution framework:
//
//   - Step: one stage of the pipeline. Every step reads its input table,
//     transforms it fully in memory and replaces its output table, so it
//     can be run again safely.
//   - Registry: holds the steps and orders them by their dependencies.
//   - Manager: runs the ordered steps one at a time with a per-step
//     timeout. Store failures and timeouts are retried after a delay; any
//     other failure ends the run and skips the remaining steps. Only one
//     run executes at a time.
//   - OperationState: the state of a run and of each of its steps.
//   - RunLog: receives a summary of every finished run.
//
// The pipeline steps, in order, are build_db, check_raw_schema, load_data,
// map_city_tier, map_categorical_vars, map_interactions and
// check_model_input_schema.
//
// Example usage:
//
//	registry, err := operations.NewPipelineRegistry(logger, &operations.StageOptions{
//		Paths:            cfg.Paths,
//		Mappings:         mappings,
//		ValidationPolicy: cfg.Pipeline.ValidationPolicy,
//	})
//	manager := operations.NewManager(registry, operations.ConfigFromPipeline(cfg.Pipeline),
//		tracer, &operations.StoreRunLog{Path: cfg.Paths.DBFile, Logger: logger}, logger)
//	resp, err := manager.Execute(ctx, operations.RunRequest{Trigger: operations.TriggerManual})
package operations
