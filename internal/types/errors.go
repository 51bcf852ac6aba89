package types

import "errors"

// Sentinel errors for btmgen operations.
var (
	// ErrWriterClosed indicates an operation on a closed sharded writer.
	ErrWriterClosed = errors.New("sharded writer is closed")

	// ErrHeaderNotWritten indicates Append was called before WriteHeader.
	ErrHeaderNotWritten = errors.New("header must be written before append")

	// ErrFileTooLarge indicates a source file exceeds the configured size cap.
	ErrFileTooLarge = errors.New("source file exceeds size limit")

	// ErrUnsupportedLanguage indicates a file extension no scanner handles.
	ErrUnsupportedLanguage = errors.New("unsupported source language")

	// ErrTranslationFailed indicates an expression fell outside the safe grammar.
	ErrTranslationFailed = errors.New("expression outside safe grammar")

	// ErrRunNotFound indicates no run matches the requested ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidConfig indicates a configuration value failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPredicateNotFound indicates no predicate is registered for a rule ID.
	ErrPredicateNotFound = errors.New("predicate not registered")

	// ErrBindingNotFound indicates a predicate referenced an unbound name.
	ErrBindingNotFound = errors.New("binding not found")

	// ErrBindingPathTooDeep indicates a dotted name exceeds MaxBindingDepth.
	ErrBindingPathTooDeep = errors.New("binding path exceeds maximum depth")

	// ErrDatabaseRequired indicates an operation needs a configured database.
	ErrDatabaseRequired = errors.New("database not configured")

	// ErrMigrationsPending indicates the database schema is behind the binary.
	ErrMigrationsPending = errors.New("database migrations pending")
)
