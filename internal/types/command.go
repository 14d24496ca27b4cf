package types

// CommandResult wraps an external process invocation.
type CommandResult struct {
	Command []string
	Success bool
	Stdout  string
	Stderr  string
}
