package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/echotherm/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every `env` struct tag.
const EnvPrefix = "ECHOTHERM_"

// LoadConfig fills opts with precedence CLI flag > environment > TOML file.
// opts must be a pointer to a struct; the file path is read from its
// Config field. Fields map to the file through `toml:"table.key"` tags and
// to the environment through `env:"KEY"` tags. Flags explicitly set on cmd
// are never overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f.Name] = true
			}
		})
	}

	file, err := readTOML(v.FieldByName("Config"))
	if err != nil {
		return err
	}

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if changed[fieldNameToFlag(sf.Name)] {
			continue
		}

		if path := sf.Tag.Get("toml"); path != "" && file != nil {
			if value := getNestedValue(file, path); value != nil {
				setFieldValue(field, value)
			}
		}
		if key := sf.Tag.Get("env"); key != "" {
			if s, ok := os.LookupEnv(EnvPrefix + key); ok && s != "" {
				setFieldValueFromString(field, s)
			}
		}
	}
	return nil
}

// readTOML returns nil without error when no path is set or the file is
// missing; the daemon runs on defaults in that case.
func readTOML(pathField reflect.Value) (map[string]any, error) {
	if !pathField.IsValid() || pathField.Kind() != reflect.String || pathField.String() == "" {
		return nil, nil
	}
	data, err := os.ReadFile(pathField.String())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	var out map[string]any
	if err := toml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return out, nil
}

// fieldNameToFlag converts a struct field name to the flag name humacli
// derives for it: "ShutterMode" -> "shutter-mode".
func fieldNameToFlag(fieldName string) string {
	var out []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			out = append(out, '-')
		}
		out = append(out, unicode.ToLower(r))
	}
	return string(out)
}

// getNestedValue resolves a dotted path in a decoded TOML document.
func getNestedValue(data map[string]any, path string) any {
	current := data
	parts := strings.Split(path, ".")
	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue assigns a decoded TOML value. Integer fields also accept
// booleans (true = 1) so `sharpen = true` works like the command protocol.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		case bool:
			field.SetInt(boolToInt(n))
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		arr, ok := value.([]any)
		if !ok || field.Type().Elem().Kind() != reflect.String {
			return
		}
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

// setFieldValueFromString assigns an environment value.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if n, ok := ParseIntOrBool(value); ok {
			field.SetInt(int64(n))
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	}
}

// ParseIntOrBool parses a trimmed decimal integer, or "true"/"false" as 1/0.
func ParseIntOrBool(s string) (int, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// LoadLoggingConfig reads the [logging] table. Defaults are returned when
// the file is missing or malformed so logging can start before anything
// else is validated.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}
	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging struct {
			Level   string            `toml:"level"`
			Format  string            `toml:"format"`
			Modules map[string]string `toml:"modules"`
		} `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	if raw.Logging.Level != "" {
		cfg.Level = raw.Logging.Level
	}
	if raw.Logging.Format != "" {
		cfg.Format = raw.Logging.Format
	}
	for k, v := range raw.Logging.Modules {
		cfg.Modules[k] = v
	}
	return cfg
}
