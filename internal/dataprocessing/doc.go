// Package dataprocessing holds the lead scoring transforms and the readers
// for the files they consume.
//
// # Architecture
//
// The package is organized into three components:
//
// 1. Parser: reads the raw lead file (CSV or XLSX) into a dataset
// 2. Mapping: loads the interaction_type to interaction_mapping table
// 3. Transforms: pure functions, one per stage
//
// # Data Flow
//
//	raw file → FillZero → MapCityTier → CollapseCategoricals → MapInteractions
//
// Each transform returns a new dataset and leaves its input untouched, so a
// stage can be re-run on the same input with the same result.
//
// # Error Handling
//
// Parsing failures wrap ErrEmptyFile or ErrMalformedFile; a missing file
// matches os.ErrNotExist. Transforms wrap ErrMissingColumn when a column
// they need is absent, and MapInteractions passes dataset.ErrNonNumeric
// through when an interaction value is text.
package dataprocessing
