package model

import "errors"

// Error variables for graph and layer operations.
var (
	ErrDuplicateElement = errors.New("element id already exists")
	ErrElementNotFound  = errors.New("element not found")
	ErrMissingEndpoint  = errors.New("edge endpoint does not exist")
	ErrLayerNotFound    = errors.New("layer not found")
	ErrInvalidElementID = errors.New("invalid element id")
	ErrEmptyPredicate   = errors.New("edge predicate cannot be empty")
	ErrManifestInvalid  = errors.New("invalid manifest")
	ErrModelDirEmpty    = errors.New("model-dir cannot be empty")
)

// Error variables for CLI argument handling.
var (
	ErrFlagRequiresArg = errors.New("flag requires an argument")
	ErrUnknownFlag     = errors.New("unknown flag")
)
