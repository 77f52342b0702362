/*
Package domain contains the core domain models for the Pergola engine.

It defines the fundamental entities of the workflow state machine (Workflow,
State, Transition, Parameter and Run) along with the condition expression
type and the error taxonomy shared across components. This package is kept
pure and free of external dependencies like I/O or persistence.
*/
package domain
