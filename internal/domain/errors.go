package domain

import "errors"

// Callers classify failures with errors.Is against these sentinels.
var (
	ErrMalformedResponse      = errors.New("malformed response")
	ErrNotFound               = errors.New("not found")
	ErrAuth                   = errors.New("authentication rejected")
	ErrTransient              = errors.New("transient failure")
	ErrDocumentParse          = errors.New("document parse error")
	ErrConcurrentModification = errors.New("concurrent modification")
)
