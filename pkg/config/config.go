// Package config provides loading and validation of verification session parameters.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/boundcheck/pkg/outcome"
)

// Sentinel validation errors.
var (
	ErrConflictingModes = outcome.Sentinel(outcome.ConfigurationError,
		"resume-from-checkpoint and replay-from-trace are mutually exclusive")
	ErrInvalidMemLimit    = outcome.Sentinel(outcome.ConfigurationError, "invalid memory limit")
	ErrInvalidField       = outcome.Sentinel(outcome.ConfigurationError, "invalid session configuration")
	ErrProjectNameFrozen  = errors.New("project name already derived for this session")
	ErrProjectNameMissing = outcome.Sentinel(outcome.ConfigurationError, "project name cannot be derived")
)

// Mode is the run mode a session is started in.
type Mode string

const (
	// ModeFresh starts a new bounded search.
	ModeFresh Mode = "fresh"
	// ModeResume continues a search from a checkpoint.
	ModeResume Mode = "resume"
	// ModeReplay re-executes a recorded counterexample.
	ModeReplay Mode = "replay"
)

// SessionConfig holds every parameter of one verification session.
// It is read-only after Validate except for the project name, which
// DeriveProjectName sets once.
type SessionConfig struct {
	Verbosity    int    `mapstructure:"verbosity"     validate:"gte=0,lte=3"`
	OutputFolder string `mapstructure:"output_folder" validate:"required"`
	ProjectName  string `mapstructure:"project_name"`

	Model             string `mapstructure:"model"`
	EntryPoint        string `mapstructure:"entry_point"`
	EntryPointDefault string `mapstructure:"entry_point_default" validate:"required"`

	WriteCheckpoint    bool   `mapstructure:"write_checkpoint"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval" validate:"gte=0"`
	CheckpointBackend  string `mapstructure:"checkpoint_backend"  validate:"oneof=file badger"`
	UseReduction       bool   `mapstructure:"use_reduction"`

	ResumeFromCheckpoint string `mapstructure:"resume_from_checkpoint"`
	ReplayFromTraceFile  string `mapstructure:"replay_from_trace"`

	TimeLimit time.Duration `mapstructure:"time_limit" validate:"gte=0"`
	MemLimit  string        `mapstructure:"mem_limit"`

	RandomSeed    uint64 `mapstructure:"random_seed"`
	Shuffle       bool   `mapstructure:"shuffle"`
	SolverBackend string `mapstructure:"solver_backend" validate:"oneof=bdd sat explicit"`
	MaxDepth      int    `mapstructure:"max_depth"      validate:"gte=1"`
	MaxExecutions int    `mapstructure:"max_executions" validate:"gte=0"`

	StatsTextfile string `mapstructure:"stats_textfile"`

	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	memLimitBytes  uint64
	projectDerived bool
}

// TelemetryConfig holds logging and OpenTelemetry export settings.
type TelemetryConfig struct {
	LogJSON      bool   `mapstructure:"log_json"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	OTLPHeaders  string `mapstructure:"otlp_headers"`
}

// Default returns a SessionConfig populated with default values.
func Default() *SessionConfig {
	return &SessionConfig{
		Verbosity:          DefaultVerbosity,
		OutputFolder:       DefaultOutputFolder,
		EntryPoint:         DefaultEntryPointName,
		EntryPointDefault:  DefaultEntryPointName,
		CheckpointInterval: DefaultCheckpointInterval,
		CheckpointBackend:  DefaultCheckpointBackend,
		SolverBackend:      DefaultSolverBackend,
		RandomSeed:         DefaultRandomSeed,
		MaxDepth:           DefaultMaxDepth,
		MaxExecutions:      DefaultMaxExecutions,
		MemLimit:           DefaultMemLimit,
	}
}

// LoadConfig builds a SessionConfig from defaults, an optional YAML file,
// BOUNDCHECK_* environment variables and, when flags is non-nil, command line
// flags named after the keys with dashes instead of underscores.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*SessionConfig, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(DefaultConfigName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if flags != nil {
		bindErr := bindFlags(viperCfg, flags)
		if bindErr != nil {
			return nil, bindErr
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, outcome.Tag(outcome.ConfigurationError,
				fmt.Errorf("failed to read config file: %w", readErr))
		}
	}

	var cfg SessionConfig

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, outcome.Tag(outcome.ConfigurationError,
			fmt.Errorf("failed to unmarshal config: %w", unmarshalErr))
	}

	return &cfg, nil
}

func setDefaults(viperCfg *viper.Viper) {
	def := Default()

	viperCfg.SetDefault("verbosity", def.Verbosity)
	viperCfg.SetDefault("output_folder", def.OutputFolder)
	viperCfg.SetDefault("project_name", "")
	viperCfg.SetDefault("model", "")
	viperCfg.SetDefault("entry_point", def.EntryPoint)
	viperCfg.SetDefault("entry_point_default", def.EntryPointDefault)
	viperCfg.SetDefault("write_checkpoint", false)
	viperCfg.SetDefault("checkpoint_interval", def.CheckpointInterval)
	viperCfg.SetDefault("checkpoint_backend", def.CheckpointBackend)
	viperCfg.SetDefault("use_reduction", false)
	viperCfg.SetDefault("resume_from_checkpoint", "")
	viperCfg.SetDefault("replay_from_trace", "")
	viperCfg.SetDefault("time_limit", "0s")
	viperCfg.SetDefault("mem_limit", def.MemLimit)
	viperCfg.SetDefault("random_seed", def.RandomSeed)
	viperCfg.SetDefault("shuffle", false)
	viperCfg.SetDefault("solver_backend", def.SolverBackend)
	viperCfg.SetDefault("max_depth", def.MaxDepth)
	viperCfg.SetDefault("max_executions", def.MaxExecutions)
	viperCfg.SetDefault("stats_textfile", "")
	viperCfg.SetDefault("telemetry.log_json", false)
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.otlp_headers", "")
}

// bindFlags binds every defined flag whose name maps onto a known key.
func bindFlags(viperCfg *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error

	known := viperCfg.AllKeys()

	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if strings.HasPrefix(key, "otlp_") || key == "log_json" {
			key = "telemetry." + key
		}

		if !slices.Contains(known, key) {
			return
		}

		err := viperCfg.BindPFlag(key, f)
		if err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})

	return bindErr
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks mode exclusivity first, then field constraints, then
// parses the memory limit. Every failure is a configuration error.
func (c *SessionConfig) Validate() error {
	if c.ResumeFromCheckpoint != "" && c.ReplayFromTraceFile != "" {
		return ErrConflictingModes
	}

	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidField, err)
	}

	limit := strings.TrimSpace(c.MemLimit)
	if limit == "" || limit == "0" {
		c.memLimitBytes = 0

		return nil
	}

	bytes, err := humanize.ParseBytes(limit)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidMemLimit, c.MemLimit, err)
	}

	c.memLimitBytes = bytes

	return nil
}

// MemLimitBytes returns the parsed memory limit; zero means unlimited.
// Only meaningful after Validate.
func (c *SessionConfig) MemLimitBytes() uint64 {
	return c.memLimitBytes
}

// Mode reports the run mode selected by the resume and replay paths.
func (c *SessionConfig) Mode() Mode {
	switch {
	case c.ReplayFromTraceFile != "":
		return ModeReplay
	case c.ResumeFromCheckpoint != "":
		return ModeResume
	default:
		return ModeFresh
	}
}

// DeriveProjectName fills ProjectName from modelName when the operator left
// it empty. It may be called once per session.
func (c *SessionConfig) DeriveProjectName(modelName string) (string, error) {
	if c.projectDerived {
		return c.ProjectName, ErrProjectNameFrozen
	}

	if c.ProjectName == "" {
		c.ProjectName = sanitizeProjectName(modelName)
	}

	if c.ProjectName == "" {
		return "", ErrProjectNameMissing
	}

	c.projectDerived = true

	return c.ProjectName, nil
}

// sanitizeProjectName keeps the last dotted segment of a model name and
// replaces path separators so the result is safe inside file names.
func sanitizeProjectName(name string) string {
	name = strings.TrimSpace(name)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}

	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(name)
}
