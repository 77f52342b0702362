/*
Package agent defines the executor capability shared by every agent backend,
the configuration that selects one, and the Factory that is the only place
executors are constructed.

The capability lives in exactly one package on purpose: the workflow runtime
and the tool-invocation server both depend on it downward, which keeps the
two layers free of any dependency on each other.
*/
package agent
