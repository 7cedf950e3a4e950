package build

// Deployment selects which of the two logging code paths NewSubLogger
// takes. It is Production by default; a development build that wants the
// stdout-only test logger swaps this (and LoggingType) via a build tag of
// its own.
const Deployment = Production

// LogLevel is the level assigned to the stdout logger constructed in
// development/LogTypeStdOut mode, before any per-subsystem override from
// the command line is applied.
const LogLevel = "info"
