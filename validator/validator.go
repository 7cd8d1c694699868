package validator

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/eddielth/mesh-trans/config"
)

// Validator checks one field of a struct
type Validator interface {
	Validate(data interface{}) error
}

// RangeValidator checks that a numeric field lies in [Min, Max]
type RangeValidator struct {
	Field string
	Min   float64
	Max   float64
}

// Validate checks the field value against the range
func (rv *RangeValidator) Validate(data interface{}) error {
	field, err := fieldByName(data, rv.Field)
	if err != nil {
		return err
	}

	var value float64
	switch field.Kind() {
	case reflect.Float32, reflect.Float64:
		value = field.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		value = float64(field.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		value = float64(field.Uint())
	default:
		return fmt.Errorf("field %s is not numeric", rv.Field)
	}

	if value < rv.Min || value > rv.Max {
		return fmt.Errorf("field %s value %v is outside [%v, %v]", rv.Field, value, rv.Min, rv.Max)
	}

	return nil
}

// OneOfValidator checks that a string field holds one of Values.
// An empty Values list only requires the field to be non-empty.
type OneOfValidator struct {
	Field  string
	Values []string
}

// Validate checks the field value against the allowed set
func (ov *OneOfValidator) Validate(data interface{}) error {
	field, err := fieldByName(data, ov.Field)
	if err != nil {
		return err
	}
	if field.Kind() != reflect.String {
		return fmt.Errorf("field %s is not a string", ov.Field)
	}

	value := field.String()
	if len(ov.Values) == 0 {
		if value == "" {
			return fmt.Errorf("field %s is required", ov.Field)
		}
		return nil
	}
	for _, allowed := range ov.Values {
		if value == allowed {
			return nil
		}
	}
	return fmt.Errorf("field %s value %q is not one of %v", ov.Field, value, ov.Values)
}

func fieldByName(data interface{}, name string) (reflect.Value, error) {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("data must be a struct")
	}

	field := v.FieldByName(name)
	if !field.IsValid() {
		return reflect.Value{}, fmt.Errorf("field %s does not exist", name)
	}
	return field, nil
}

// ValidateConfig runs the standard checks over a loaded configuration
func ValidateConfig(cfg *config.Config) error {
	var errs []error

	check := func(section string, data interface{}, validators ...Validator) {
		for _, v := range validators {
			if err := v.Validate(data); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", section, err))
			}
		}
	}

	check("mqtt", cfg.MQTT,
		&OneOfValidator{Field: "Broker"},
		&RangeValidator{Field: "QoS", Min: 0, Max: 2},
	)
	check("logger", cfg.Logger,
		&OneOfValidator{Field: "Level", Values: []string{"DEBUG", "INFO", "WARN", "WARNING", "ERROR", "debug", "info", "warn", "warning", "error"}},
		&RangeValidator{Field: "MaxSize", Min: 1, Max: 1024},
		&RangeValidator{Field: "MaxBackups", Min: 0, Max: 100},
	)
	if cfg.Storage.Database.Enabled {
		check("storage.database", cfg.Storage.Database,
			&OneOfValidator{Field: "Type", Values: []string{"mysql", "postgresql", "sqlite"}},
			&OneOfValidator{Field: "DSN"},
		)
	}
	if cfg.Storage.File.Enabled {
		check("storage.file", cfg.Storage.File, &OneOfValidator{Field: "Path"})
	}
	if cfg.Metrics.Enabled {
		check("metrics", cfg.Metrics, &OneOfValidator{Field: "Listen"})
	}

	return errors.Join(errs...)
}
