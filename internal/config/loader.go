package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PathEnv names an explicit config file that takes precedence over the
// candidate locations.
const PathEnv = "HAITATON_CONFIG"

// candidatePaths lists the locations searched for config.yaml, in order.
func candidatePaths() []string {
	paths := []string{}
	if p := os.Getenv(PathEnv); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths,
		"/haitaton-gis/config.yaml",
		"/haitaton-gis-validate-deploy/config.yaml",
		"config.yaml",
	)
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), "config.yaml"))
	}
	return paths
}

// LoadDotEnv loads a .env file if one exists. Values in the file overwrite
// existing environment variables. Returns false when no file was loaded.
func LoadDotEnv(files ...string) bool {
	return godotenv.Overload(files...) == nil
}

// Load finds the config file, selects the profile named by
// TORMAYS_DEPLOYMENT_PROFILE (default: local_development), applies defaults
// and environment overrides, and validates the result.
func Load() (*Config, error) {
	path, err := findConfig(candidatePaths())
	if err != nil {
		return nil, err
	}

	profile := os.Getenv(ProfileEnv)
	if profile == "" {
		profile = ProfileLocalDevelopment
	}

	return LoadFile(path, profile)
}

func findConfig(paths []string) (string, error) {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(paths, ", "))
}

// LoadFile reads configuration from path for the given deployment profile.
func LoadFile(path, profile string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config load: parse %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg.Path = abs
	cfg.Profile = profile

	if err := cfg.resolve(); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// resolve applies default tags everywhere and env overrides to the active
// profile's database settings and to logging.
func (c *Config) resolve() error {
	if err := applyDefaults(reflect.ValueOf(c).Elem()); err != nil {
		return err
	}
	if err := applyEnv(reflect.ValueOf(&c.Logging).Elem()); err != nil {
		return err
	}

	p, ok := c.Profiles[c.Profile]
	if !ok {
		return nil
	}
	if err := applyEnv(reflect.ValueOf(&p.Database).Elem()); err != nil {
		return err
	}
	c.Profiles[c.Profile] = p
	return nil
}

// applyDefaults recursively sets zero-valued fields from their default tag.
// Map values are copied, filled and stored back.
func applyDefaults(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		switch {
		case field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}):
			if err := applyDefaults(fieldVal); err != nil {
				return err
			}
			continue

		case field.Type.Kind() == reflect.Map && field.Type.Elem().Kind() == reflect.Struct:
			iter := fieldVal.MapRange()
			for iter.Next() {
				elem := reflect.New(field.Type.Elem()).Elem()
				elem.Set(iter.Value())
				if err := applyDefaults(elem); err != nil {
					return err
				}
				fieldVal.SetMapIndex(iter.Key(), elem)
			}
			continue
		}

		defaultVal := field.Tag.Get("default")
		if defaultVal == "" || !fieldVal.IsZero() {
			continue
		}

		if err := setField(fieldVal, defaultVal); err != nil {
			return fmt.Errorf("invalid default for %s=%q: %w", field.Name, defaultVal, err)
		}
	}

	return nil
}

// applyEnv overrides fields from the environment variable named by their
// env tag. Unset variables leave the YAML value in place.
func applyEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		envName := field.Tag.Get("env")
		if envName == "" || !fieldVal.CanSet() {
			continue
		}

		value := os.Getenv(envName)
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

var validate = validator.New()

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, describeFieldError(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	// Profile validation
	switch c.Profile {
	case ProfileLocalDevelopment, ProfileLocalDockerDevelopment, ProfileDockerDevelopment:
		p, ok := c.Profiles[c.Profile]
		if !ok {
			errs = append(errs, fmt.Sprintf("profile %q has no section under profiles", c.Profile))
			break
		}
		if p.Database.MaxConns <= 0 {
			errs = append(errs, "database max_conns must be positive")
		}
		if p.Database.MaxConns < p.Database.MinConns {
			errs = append(errs, fmt.Sprintf("database max_conns (%d) must be >= min_conns (%d)",
				p.Database.MaxConns, p.Database.MinConns))
		}
		if p.Database.Port <= 0 || p.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database port (%d) must be 1-65535", p.Database.Port))
		}
		if c.Profile != ProfileLocalDevelopment {
			for name, dir := range map[string]string{"download_dir": p.Storage.DownloadDir, "output_dir": p.Storage.OutputDir} {
				if dir != "" && !filepath.IsAbs(dir) {
					errs = append(errs, fmt.Sprintf("profile %s: %s (%q) must be absolute", c.Profile, name, dir))
				}
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("%s (%q) must be one of: %s, %s, %s", ProfileEnv, c.Profile,
			ProfileLocalDevelopment, ProfileLocalDockerDevelopment, ProfileDockerDevelopment))
	}

	if c.Common.BatchSize <= 0 {
		errs = append(errs, "common batch_size must be positive")
	}

	// Dataset validation
	for name, ds := range c.Datasets {
		if ds.ValidateLimitMax < ds.ValidateLimitMin {
			errs = append(errs, fmt.Sprintf("dataset %s: validate_limit_max (%g) must be >= validate_limit_min (%g)",
				name, ds.ValidateLimitMax, ds.ValidateLimitMin))
		}
		if (ds.TormaysTableOrg == "") != (ds.TormaysTableTemp == "") {
			errs = append(errs, fmt.Sprintf("dataset %s: tormays_table_org and tormays_table_temp must be set together", name))
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging level (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("logging format (%q) must be one of: text, json", c.Logging.Format))
	}

	if c.Logging.Filemode != "a" && c.Logging.Filemode != "w" {
		errs = append(errs, fmt.Sprintf("logging filemode (%q) must be a or w", c.Logging.Filemode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func describeFieldError(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s failed %s=%s (value %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
}
