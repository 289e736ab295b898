package resource

import "github.com/go-playground/validator/v10"

// validate is a package-level *validator.Validate shared across the
// resource layer's struct-tag-validated configs, the same pattern
// ahrav-go-gavel uses for its graph/unit config structs
// (internal/application/validators.go).
var validate = validator.New()

// ValidatePoolConfig checks cfg's struct tags (Min >= 0, Max >= Min and >
// 0, every duration non-negative). Call before NewConnectionPool when cfg
// is built from external (YAML/flag) input.
func ValidatePoolConfig(cfg PoolConfig) error {
	return validate.Struct(cfg)
}
