// Package common provides shared utilities for the FHIRPath engine:
// sentinel errors and error types carrying path context.
package common
