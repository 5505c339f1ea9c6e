// Package cosim implements an FMI 1.0 co-simulation slave that drives an
// EnergyPlus companion process over the BCVTB socket protocol.
//
// # Reading Guide
//
// Start with these files to understand the adapter:
//   - adapter.go: the exported operations, one per FMI call, and handle resolution
//   - phase.go: the instance lifecycle (created → initializing → stepping → terminated → freed)
//   - launch.go: run preparation, companion launch and the socket rendezvous
//   - step.go: communication step validation and the variable exchange
//   - exchange.go: reading and writing vectors, and teardown
//
// # Architecture
//
// The cosim package orchestrates; the building blocks live in sub-packages:
//   - cosim/registry/: generation-checked instance handles
//   - cosim/catalog/: the model description (variable catalog)
//   - cosim/bcvtb/: the text-vector socket protocol and the socket descriptor
//   - cosim/launcher/: starting and stopping the companion process
//   - cosim/runcfg/: run-configuration files written into the working directory
//   - cosim/trace/: per-instance step and exchange recording
//   - cosim/metrics/: prometheus collectors
//
// # Statuses
//
// Every operation returns a Status. Internally failures are errors wrapped in
// *Error; sentinel errors (ErrGUIDMismatch, ErrConnectTimeout, ...) can
// be matched with errors.Is. A fatal failure releases everything the
// instance holds and leaves it Failed; an Error leaves it usable.
//
// The adapter never changes the process working directory or environment:
// the instance's location is passed to the companion explicitly.
package cosim
