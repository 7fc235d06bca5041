// Package manifest loads stack manifests from YAML. A manifest declares
// the units of one stack, their versions, declared outputs, and named
// input references onto other units' outputs. Loading validates shape
// and reference syntax only; graph-level validation (unknown producers,
// cycles) happens at planning time.
package manifest
