package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeGraph represents graph store errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeStorage represents persistence errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeExtraction represents extraction/LLM errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeTool represents tool execution errors
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeVault represents note source errors
	ErrorTypeVault ErrorType = "vault"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Vault Errors

// ErrScanInProgress is returned when a bulk analysis is already running
var ErrScanInProgress = NewBaseError(ErrorTypeVault, "a full vault analysis is already running", nil)

// ErrNoteNotFound is returned when a note path cannot be read from the vault
type ErrNoteNotFound struct {
	*BaseError
	Path string
}

func NewNoteNotFound(path string, err error) *ErrNoteNotFound {
	return &ErrNoteNotFound{
		BaseError: NewBaseError(ErrorTypeVault, fmt.Sprintf("note not found: %s", path), err),
		Path:      path,
	}
}

// Extraction Errors

// ErrExtractionFailed is returned when the extraction service fails
type ErrExtractionFailed struct {
	*BaseError
	Model    string
	Attempts int
}

func NewExtractionFailed(model string, attempts int, err error) *ErrExtractionFailed {
	return &ErrExtractionFailed{
		BaseError: NewBaseError(ErrorTypeExtraction, fmt.Sprintf("extraction failed after %d attempts", attempts), err),
		Model:     model,
		Attempts:  attempts,
	}
}

// ErrMalformedBatch is returned when the extraction response cannot be parsed
type ErrMalformedBatch struct {
	*BaseError
	Raw string
}

func NewMalformedBatch(raw string, err error) *ErrMalformedBatch {
	return &ErrMalformedBatch{
		BaseError: NewBaseError(ErrorTypeExtraction, "extraction returned an unparseable batch", err),
		Raw:       raw,
	}
}

// Storage Errors

// ErrSaveFailed is returned when persisting the graph blob fails
type ErrSaveFailed struct {
	*BaseError
	Path string
}

func NewSaveFailed(path string, err error) *ErrSaveFailed {
	return &ErrSaveFailed{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("failed to persist graph: %s", path), err),
		Path:      path,
	}
}

// ErrLoadFailed is returned when reading the graph blob fails
type ErrLoadFailed struct {
	*BaseError
	Path string
}

func NewLoadFailed(path string, err error) *ErrLoadFailed {
	return &ErrLoadFailed{
		BaseError: NewBaseError(ErrorTypeStorage, fmt.Sprintf("failed to load graph: %s", path), err),
		Path:      path,
	}
}

// Tool Errors

// ErrUnknownTool is returned when a tool name is not recognized
type ErrUnknownTool struct {
	*BaseError
	ToolName string
}

func NewUnknownTool(toolName string) *ErrUnknownTool {
	return &ErrUnknownTool{
		BaseError: NewBaseError(ErrorTypeTool, fmt.Sprintf("unknown tool: %s", toolName), nil),
		ToolName:  toolName,
	}
}
