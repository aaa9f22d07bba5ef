package graft

import "fmt"

// PanicError is stored in a task's result slot when its computation panics.
// The task still counts as completed; the panic surfaces as this error on
// Get, Value, or Await.
type PanicError struct {
	// Value is the value the computation panicked with.
	Value any
	// Stack is the stack trace captured at recovery.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("graft: task panicked: %v", e.Value)
}
