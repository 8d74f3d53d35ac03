package common

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LoadEnvFromReader reads from the given io.Reader, parses environment
// variables, and sets them in the process environment. It skips empty lines
// and lines starting with '#', strips inline comments, and expands
// variables, including the ${VAR:-default} syntax.
func LoadEnvFromReader(reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	// Regex for capturing ${VAR:-DEFAULT} syntax
	defaultPattern := regexp.MustCompile(`\$\{([^:}]+):-([^}]+)\}`)

	for scanner.Scan() {
		lineContent := strings.TrimSpace(scanner.Text())

		if len(lineContent) == 0 || strings.HasPrefix(lineContent, "#") {
			continue
		}

		// Take content before the first '#'. Assumes '#' is not part of a
		// quoted value, which suits common .env comment styles.
		effectiveLine := lineContent
		if commentIdx := strings.Index(lineContent, "#"); commentIdx != -1 {
			effectiveLine = strings.TrimSpace(lineContent[:commentIdx])
		}
		if len(effectiveLine) == 0 {
			continue
		}

		parts := strings.SplitN(effectiveLine, "=", 2)
		if len(parts) != 2 {
			// Malformed line, skip it.
			continue
		}

		key := strings.TrimSpace(parts[0])
		valueStr := strings.TrimSpace(parts[1])

		// Remove surrounding quotes (single or double)
		if len(valueStr) > 1 {
			if (valueStr[0] == '"' && valueStr[len(valueStr)-1] == '"') ||
				(valueStr[0] == '\'' && valueStr[len(valueStr)-1] == '\'') {
				valueStr = valueStr[1 : len(valueStr)-1]
			}
		}

		// Expand ${VAR:-default} before standard expansion
		processedValue := defaultPattern.ReplaceAllStringFunc(valueStr, func(match string) string {
			submatches := defaultPattern.FindStringSubmatch(match)
			varName := submatches[1]
			defaultValue := submatches[2]

			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultValue
		})

		finalValue := os.ExpandEnv(processedValue)

		if err := os.Setenv(key, finalValue); err != nil {
			return fmt.Errorf("failed to set environment variable %s: %w", key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading from input: %w", err)
	}
	return nil
}

// ImportDotenv reads a .env file from the current working directory and adds
// its key-value pairs to the process environment using LoadEnvFromReader.
func ImportDotenv() error {
	pwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("error getting current working directory: %w", err)
	}

	file, err := os.Open(filepath.Join(pwd, ".env"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No .env file found, not an error.
		}
		return fmt.Errorf("error opening .env file: %w", err)
	}
	defer file.Close()

	return LoadEnvFromReader(file)
}

// LoadEnvToStruct populates the fields of the given struct pointer based on
// environment variables specified in struct tags. The tag format is
// `env:"ENV_VAR_NAME[,default=value][,required]"`. Supported field types are
// string, integers, bool, time.Duration and []string (comma separated).
func LoadEnvToStruct(ptr interface{}) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("input must be a pointer to a struct")
	}

	elem := v.Elem()
	elemType := elem.Type()

	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		fieldType := elemType.Field(i)

		if !field.CanSet() {
			continue
		}

		tag := fieldType.Tag.Get("env")
		if tag == "" {
			continue
		}

		parts := strings.Split(tag, ",")
		envVarName := parts[0]
		var defaultValue string
		required := false

		for _, part := range parts[1:] {
			if strings.HasPrefix(part, "default=") {
				defaultValue = strings.TrimPrefix(part, "default=")
			} else if part == "required" {
				required = true
			}
		}

		envValue, found := os.LookupEnv(envVarName)

		if !found {
			if required {
				return fmt.Errorf("required environment variable %s not set", envVarName)
			}
			if defaultValue != "" {
				envValue = defaultValue
			} else {
				continue
			}
		}

		if err := setField(field, fieldType, envValue); err != nil {
			return err
		}
	}
	return nil
}

func setField(field reflect.Value, fieldType reflect.StructField, envValue string) error {
	// time.Duration is an int64 underneath; it must be matched before the
	// generic integer case.
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(envValue)
		if err != nil {
			return fmt.Errorf("error parsing duration for %s from %q: %w", fieldType.Name, envValue, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(envValue, 0, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("error parsing int for %s from %q: %w", fieldType.Name, envValue, err)
		}
		field.SetInt(intValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(envValue)
		if err != nil {
			return fmt.Errorf("error parsing bool for %s from %q: %w", fieldType.Name, envValue, err)
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s for field %s", field.Type().Elem().Kind(), fieldType.Name)
		}
		var items []string
		for _, item := range strings.Split(envValue, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				items = append(items, trimmed)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type %s for field %s", field.Kind(), fieldType.Name)
	}
	return nil
}
