package build

import "errors"

var (
	ErrUnknownRecipe    = errors.New("unknown recipe")
	ErrUnknownLayer     = errors.New("unknown layer")
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrMissingParameter = errors.New("missing parameter value")
	ErrStepFailed       = errors.New("step failed")
	ErrMount            = errors.New("mount failed")
)
