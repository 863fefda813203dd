// Package app wires the daemon together: it owns the logger, the file
// configuration, the validated preprocessing module and the worker process
// handle as one explicit long-lived object, constructed once at startup and
// passed to every call site. There are no package-level lazily initialized
// singletons; the App is the orchestrator the rest of the system talks
// through.
package app
