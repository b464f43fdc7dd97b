// Package operations orchestrates the cleaning pipeline as a sequence of
// registered steps. Each step implements the Step interface; a Registry
// orders them by dependencies and a Manager executes them sequentially with
// per-step runtime state, progress reporting, and tracing.
package operations
