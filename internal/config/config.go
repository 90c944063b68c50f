// Package config loads flat option structs with precedence
// CLI flags > environment variables > TOML config file.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to the env tag of every option field.
const EnvPrefix = "STREAMGATE_"

// Load populates opts from the TOML file named by its Config field and from
// environment variables. Flags explicitly changed on cmd keep their CLI
// value. Field tags: `toml:"section.key"` and `env:"NAME"`.
func Load(opts any, cmd *cobra.Command) error {
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

	var configPath string
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Name == "Config" {
			configPath = v.Field(i).String()
			break
		}
	}

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse config %s: %w", configPath, err)
			}
			for i := 0; i < v.NumField(); i++ {
				field, ft := v.Field(i), t.Field(i)
				if changed[flagName(ft.Name)] {
					continue
				}
				if path := ft.Tag.Get("toml"); path != "" {
					if val := lookup(doc, path); val != nil {
						setValue(field, val)
					}
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		field, ft := v.Field(i), t.Field(i)
		if changed[flagName(ft.Name)] {
			continue
		}
		if key := ft.Tag.Get("env"); key != "" {
			if val := os.Getenv(EnvPrefix + key); val != "" {
				setString(field, val)
			}
		}
	}

	return nil
}

// flagName converts a struct field name to its kebab-case CLI flag,
// keeping acronym runs as one word the way humacli names its flags.
// "RefreshInterval" -> "refresh-interval", "HLSRoot" -> "hls-root".
func flagName(field string) string {
	runes := []rune(field)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := unicode.IsUpper(cur) && !unicode.IsUpper(prev)
		// An acronym run ends one rune before its trailing word:
		// the R in "HLSRoot".
		if unicode.IsUpper(prev) && unicode.IsUpper(cur) &&
			i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			boundary = true
		}
		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	words = append(words, string(runes[start:]))
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "-")
}

// lookup resolves a dotted path in a nested TOML document.
func lookup(doc map[string]any, path string) any {
	parts := strings.Split(path, ".")
	cur := doc
	for i, part := range parts {
		if i == len(parts)-1 {
			return cur[part]
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}

func setValue(field reflect.Value, value any) {
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
		}
	case reflect.Float64:
		if f, ok := value.(float64); ok {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			if arr, ok := value.([]any); ok {
				out := make([]string, 0, len(arr))
				for _, item := range arr {
					if s, ok := item.(string); ok {
						out = append(out, s)
					}
				}
				field.Set(reflect.ValueOf(out))
			}
		}
	}
}

func setString(field reflect.Value, value string) {
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
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, len(parts))
			for i, p := range parts {
				out[i] = strings.TrimSpace(p)
			}
			field.Set(reflect.ValueOf(out))
		}
	}
}
