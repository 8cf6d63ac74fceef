package panels

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var settingsValidator = validator.New(validator.WithRequiredStructEnabled())

// decodeSettings copies a settings payload into out and validates it against
// out's `validate` tags. Unknown keys are rejected.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: false,
		TagName:          "settings",
	})
	if err != nil {
		return fmt.Errorf("failed to create settings decoder: %w", err)
	}

	if settings == nil {
		settings = map[string]any{}
	}
	if err := decoder.Decode(settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if err := settingsValidator.Struct(out); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}
