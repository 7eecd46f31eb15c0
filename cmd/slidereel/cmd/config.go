package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/slidereel/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing slidereel configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the resolved configuration",
	Long: `Dump the resolved configuration values in YAML format.

This shows all available configuration options with the values the
current invocation would use, including config file and environment
overrides. You can redirect this output to a file to create a
configuration template:

  slidereel config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., /etc/slidereel or $HOME/.slidereel)
  - Environment variables (SLIDEREEL_SERVER_PORT, SLIDEREEL_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the SLIDEREEL_ prefix and underscores for nesting.
Example: server.port -> SLIDEREEL_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get mapstructure tag or use the field name
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// cfg was resolved by the root PersistentPreRunE, so --config and
	// environment overrides are already applied.
	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# slidereel Configuration File")
	fmt.Println("# =============================")
	fmt.Println("#")
	fmt.Println("# Values reflect the current resolved configuration.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   SLIDEREEL_SERVER_HOST, SLIDEREEL_SERVER_PORT")
	fmt.Println("#   SLIDEREEL_DATABASE_DRIVER, SLIDEREEL_DATABASE_DSN")
	fmt.Println("#   SLIDEREEL_STORAGE_WORK_DIR, SLIDEREEL_STORAGE_TEMP_MAX_AGE")
	fmt.Println("#   SLIDEREEL_LOGGING_LEVEL, SLIDEREEL_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
