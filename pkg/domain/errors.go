package domain

import "errors"

// ErrAlreadyFinished is returned when a prompt receives a second terminal transition.
var ErrAlreadyFinished = errors.New("prompt already finished")

// ErrPromptNotFound is returned when a prompt ID cannot be found in a store or host.
var ErrPromptNotFound = errors.New("prompt not found")

// ErrNodeNotFound is returned when a message references a node the workflow does not contain.
var ErrNodeNotFound = errors.New("node not found")

// ErrSchemaNotLoaded is returned when a workflow is requested before any schema was loaded.
var ErrSchemaNotLoaded = errors.New("schema not loaded")

// ErrHostUnreachable is returned when the host did not answer within the allowed attempts.
var ErrHostUnreachable = errors.New("host unreachable")
