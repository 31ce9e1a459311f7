// Package config provides centralized configuration management for the GIS
// material update tools. Configuration is read from a YAML document, the
// active deployment profile is chosen by environment variable, and database
// credentials can be overridden from the environment so secrets never need
// to live in the YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ProfileEnv names the environment variable selecting the deployment profile.
const ProfileEnv = "TORMAYS_DEPLOYMENT_PROFILE"

// Deployment profiles.
const (
	ProfileLocalDevelopment       = "local_development"
	ProfileLocalDockerDevelopment = "local_docker_development"
	ProfileDockerDevelopment      = "docker_development"
)

// Deploy modes for moving staged data into production tables.
const (
	DeployDeleteInsert = "delete_insert"
	DeployReplace      = "replace"
)

var (
	// ErrConfigNotFound is returned when no candidate config path exists.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrUnknownProfile is returned for a profile the tools do not support.
	ErrUnknownProfile = errors.New("unknown deployment profile")

	// ErrDatasetNotConfigured is returned when a dataset has no config section.
	ErrDatasetNotConfigured = errors.New("dataset not configured")

	// ErrDirNotFound is returned when a storage directory does not exist.
	ErrDirNotFound = errors.New("directory not found")
)

// Config holds all application configuration.
type Config struct {
	Common   CommonConfig             `yaml:"common"`
	Logging  LoggingConfig            `yaml:"logging"`
	Profiles map[string]ProfileConfig `yaml:"profiles" validate:"required,dive"`
	Datasets map[string]DatasetConfig `yaml:"datasets" validate:"dive"`

	// Profile is the active deployment profile.
	Profile string `yaml:"-"`

	// Path is the config file the configuration was read from.
	Path string `yaml:"-"`
}

// CommonConfig holds settings shared by every dataset.
type CommonConfig struct {
	// CRS is the target coordinate reference system, e.g. "EPSG:3879"
	CRS string `yaml:"crs" validate:"required,startswith=EPSG:"`

	// BatchSize is the number of rows to insert per batch (default: 1000)
	BatchSize int `yaml:"batch_size" default:"1000"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`

	// Filename is an optional log file written in addition to stdout
	Filename string `yaml:"filename"`

	// Filemode is "a" to append to Filename or "w" to truncate it (default: a)
	Filemode string `yaml:"filemode" default:"a"`
}

// ProfileConfig holds the settings that differ per deployment profile.
type ProfileConfig struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"HAITATON_HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"HAITATON_PORT" default:"5432"`
	Username string `yaml:"username" env:"HAITATON_USER"`
	Password string `yaml:"password" env:"HAITATON_PASSWORD"`
	Database string `yaml:"database" env:"HAITATON_DATABASE"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `yaml:"max_conns" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `yaml:"min_conns"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" default:"30m"`
}

// StorageConfig holds the input and output directories.
type StorageConfig struct {
	DownloadDir string `yaml:"download_dir"`
	OutputDir   string `yaml:"output_dir"`
}

// DatasetConfig holds the settings of a single dataset. Table and file names
// may contain a "{}" placeholder that is expanded with a buffer distance.
type DatasetConfig struct {
	LocalFile        string             `yaml:"local_file"`
	Layer            string             `yaml:"layer"`
	TargetFile       string             `yaml:"target_file"`
	TargetBufferFile string             `yaml:"target_buffer_file"`
	Buffer           []float64          `yaml:"buffer" validate:"dive,gt=0"`
	BufferClass      map[string]float64 `yaml:"buffer_class_values" validate:"dive,gt=0"`

	TormaysTableOrg  string  `yaml:"tormays_table_org"`
	TormaysTableTemp string  `yaml:"tormays_table_temp"`
	ValidateLimitMin float64 `yaml:"validate_limit_min" validate:"gte=0"`
	ValidateLimitMax float64 `yaml:"validate_limit_max" validate:"gte=0"`
	DeployMode       string  `yaml:"deploy_mode" validate:"omitempty,oneof=delete_insert replace" default:"delete_insert"`

	// TormaysGeometryColumn is the geometry column of the production table
	// (default: geometry). Staged tables always use geometry.
	TormaysGeometryColumn string `yaml:"tormays_geometry_column" default:"geometry"`

	// WeekOfTransit selects the feed week used for transit schedules (default: 2)
	WeekOfTransit int `yaml:"week_of_transit" default:"2"`

	// ValidateGTFS makes feed parsing fail on the first erroneous record.
	ValidateGTFS bool `yaml:"validate_gtfs"`

	// VolumeColumn names the traffic volume attribute (default: volume)
	VolumeColumn string `yaml:"volume_column" default:"volume"`
}

// ActiveProfile returns the settings of the active deployment profile.
func (c *Config) ActiveProfile() (ProfileConfig, error) {
	p, ok := c.Profiles[c.Profile]
	if !ok {
		return ProfileConfig{}, fmt.Errorf("%w: %s", ErrUnknownProfile, c.Profile)
	}
	return p, nil
}

// Dataset returns the configuration section of a dataset.
func (c *Config) Dataset(name string) (DatasetConfig, error) {
	ds, ok := c.Datasets[name]
	if !ok {
		return DatasetConfig{}, fmt.Errorf("%w: %s", ErrDatasetNotConfigured, name)
	}
	return ds, nil
}

// DownloadDir returns the directory holding source files.
func (c *Config) DownloadDir() (string, error) {
	p, err := c.ActiveProfile()
	if err != nil {
		return "", err
	}
	return c.resolveDir(p.Storage.DownloadDir)
}

// OutputDir returns the directory receiving GeoPackage outputs.
func (c *Config) OutputDir() (string, error) {
	p, err := c.ActiveProfile()
	if err != nil {
		return "", err
	}
	return c.resolveDir(p.Storage.OutputDir)
}

// resolveDir makes local development paths relative to the config file and
// checks that the directory exists.
func (c *Config) resolveDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: storage directory not set for profile %s", ErrDirNotFound, c.Profile)
	}
	if c.Profile == ProfileLocalDevelopment && !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(c.Path), dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDirNotFound, dir)
	}
	return dir, nil
}

// LocalFile returns the source file path of a dataset.
func (c *Config) LocalFile(name string) (string, error) {
	return c.datasetPath(name, c.DownloadDir, func(ds DatasetConfig) string { return ds.LocalFile })
}

// TargetFile returns the line/area output file path of a dataset.
func (c *Config) TargetFile(name string) (string, error) {
	return c.datasetPath(name, c.OutputDir, func(ds DatasetConfig) string { return ds.TargetFile })
}

// TargetBufferFile returns the polygon output file path of a dataset.
func (c *Config) TargetBufferFile(name string) (string, error) {
	return c.datasetPath(name, c.OutputDir, func(ds DatasetConfig) string { return ds.TargetBufferFile })
}

func (c *Config) datasetPath(name string, dir func() (string, error), pick func(DatasetConfig) string) (string, error) {
	ds, err := c.Dataset(name)
	if err != nil {
		return "", err
	}
	file := pick(ds)
	if file == "" {
		return "", fmt.Errorf("dataset %s: file name not configured", name)
	}
	base, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, file), nil
}

// PgConnURI returns the PostgreSQL connection URI of the active profile.
func (c *Config) PgConnURI() (string, error) {
	p, err := c.ActiveProfile()
	if err != nil {
		return "", err
	}
	db := p.Database
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(db.Username, db.Password),
		Host:   db.Host + ":" + strconv.Itoa(db.Port),
		Path:   "/" + db.Database,
	}
	return u.String(), nil
}

// ExpandTemplate fills the "{}" placeholder of a table or file name with a
// buffer distance. Whole distances are written without decimals.
func ExpandTemplate(template string, buffer float64) string {
	return strings.ReplaceAll(template, "{}", strconv.FormatFloat(buffer, 'f', -1, 64))
}

// String returns a safe string representation of the config for logging.
// The database password is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Profile: %q, CRS: %q, ", c.Profile, c.Common.CRS))
	if p, ok := c.Profiles[c.Profile]; ok {
		b.WriteString(fmt.Sprintf("Database: {Host: %q, Port: %d, User: %q, Password: [MASKED], Name: %q}, ",
			p.Database.Host, p.Database.Port, p.Database.Username, p.Database.Database))
	}
	b.WriteString(fmt.Sprintf("Datasets: %d, ", len(c.Datasets)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
