//go:build tools

// Package tools pins build-time tooling in go.mod so oapi-codegen resolves to
// the same version for every contributor generating API clients.
package tools

import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
)
