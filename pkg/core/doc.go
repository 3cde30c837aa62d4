// Package core defines the shared language of duckstress.
//
// This package contains:
//   - Run inputs (Target, Stream, IsolationMode)
//   - Run outputs (Outcome, Result)
//   - The closed error-kind enumeration and the ClassificationSet that
//     decides which kinds are expected
//
// pkg/core imports only the standard library. Mapping native engine errors
// onto Kind happens in the harness, at the engine boundary.
package core
