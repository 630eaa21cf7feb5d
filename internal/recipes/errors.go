package recipes

import "errors"

var (
	ErrInvalidRecipe = errors.New("invalid recipe")
	ErrInvalidStep   = errors.New("invalid step")
)
