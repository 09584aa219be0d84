package main

// Exit codes returned by every command.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error / paper index not found
	ExitDataError   = 3 // Data error (malformed package or input, unknown paper)
	ExitSecurity    = 4 // Package rejected as hostile (path traversal, size bounds)
	ExitFileError   = 5 // Filesystem error (unreadable, unwritable, store busy)
)
