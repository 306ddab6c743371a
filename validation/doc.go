// Package validation validates configuration structs.
//
// Struct tags cover single-field rules and report failures by their
// mapstructure key, so the message points at the YAML key or environment
// variable that needs fixing:
//
//	type BridgeConfig struct {
//	    ErrorPolicy string `mapstructure:"error_policy" validate:"oneof=panic log"`
//	}
//	err := validation.Validate(cfg)
//
// Cross-field rules use the collecting Validator:
//
//	v := validation.New()
//	v.Check(cfg.Interval > 0, "interval", "must be positive")
//	err := v.Validate()
package validation
