// Package setup checks that the host can run customizations.
//
// This package is a collection of host checks and constants, and is therefore
// the only package that is allowed to call a global logger.
package setup
