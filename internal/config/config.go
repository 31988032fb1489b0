// Package config loads procsync settings from flags, PROCSYNC_* environment
// variables and an optional procsync.yaml, then validates them against an
// embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/roach88/procsync/internal/catalog"
)

//go:embed schema.cue
var schemaCUE string

// EnvPrefix prefixes every environment variable, e.g. PROCSYNC_TARGET_KIND.
const EnvPrefix = "PROCSYNC"

// FileName is the config file name searched for without an explicit path.
const FileName = "procsync"

// Compiler kinds.
const (
	CompilerEsbuild = "esbuild"
	CompilerCommand = "command"
)

// Target kinds.
const (
	TargetCosmos = "cosmos"
	TargetSQLite = "sqlite"
)

type Config struct {
	ScriptsDir  string   `mapstructure:"scripts_dir" json:"scripts_dir" yaml:"scripts_dir"`
	OutputDir   string   `mapstructure:"output_dir" json:"output_dir" yaml:"output_dir"`
	SourceExts  []string `mapstructure:"source_exts" json:"source_exts" yaml:"source_exts"`
	ArtifactExt string   `mapstructure:"artifact_ext" json:"artifact_ext" yaml:"artifact_ext"`
	LogLevel    string   `mapstructure:"log_level" json:"log_level" yaml:"log_level"`

	Compiler Compiler `mapstructure:"compiler" json:"compiler" yaml:"compiler"`
	Target   Target   `mapstructure:"target" json:"target" yaml:"target"`
	Ledger   Ledger   `mapstructure:"ledger" json:"ledger" yaml:"ledger"`
	Archive  Archive  `mapstructure:"archive" json:"archive" yaml:"archive"`
}

type Compiler struct {
	Kind        string `mapstructure:"kind" json:"kind" yaml:"kind"`
	Command     string `mapstructure:"command" json:"command" yaml:"command"`
	Parallelism int    `mapstructure:"parallelism" json:"parallelism" yaml:"parallelism"`
	ESTarget    string `mapstructure:"es_target" json:"es_target" yaml:"es_target"`
	Tsconfig    string `mapstructure:"tsconfig" json:"tsconfig" yaml:"tsconfig"`
}

type Target struct {
	Kind     string `mapstructure:"kind" json:"kind" yaml:"kind"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	Key      string `mapstructure:"key" json:"key" yaml:"key"`
	Database string `mapstructure:"database" json:"database" yaml:"database"`
	// Containers maps a container name to its remote collection. Containers
	// not listed use their own name.
	Containers map[string]string `mapstructure:"containers" json:"containers" yaml:"containers"`
	Path       string            `mapstructure:"path" json:"path" yaml:"path"`
	RetryMax   int               `mapstructure:"retry_max" json:"retry_max" yaml:"retry_max"`
}

// Collection returns the remote collection for a container. Viper lowercases
// map keys read from files, so a lowercase match is accepted too.
func (t Target) Collection(container string) string {
	if c, ok := t.Containers[container]; ok {
		return c
	}
	if c, ok := t.Containers[strings.ToLower(container)]; ok {
		return c
	}
	return container
}

type Ledger struct {
	// Path of the ledger database. Empty disables the ledger.
	Path string `mapstructure:"path" json:"path" yaml:"path"`
}

type Archive struct {
	Enabled   bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint  string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" json:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" json:"secret_key" yaml:"secret_key"`
	Region    string `mapstructure:"region" json:"region" yaml:"region"`
	Bucket    string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl" json:"use_ssl" yaml:"use_ssl"`
}

// Default returns the built-in settings: esbuild into output/, deploying to
// a local SQLite directory.
func Default() Config {
	layout := catalog.DefaultLayout()
	return Config{
		ScriptsDir:  layout.ScriptsDir,
		OutputDir:   layout.OutputDir,
		SourceExts:  layout.SourceExts,
		ArtifactExt: layout.ArtifactExt,
		LogLevel:    "info",
		Compiler: Compiler{
			Kind:     CompilerEsbuild,
			ESTarget: "es2015",
		},
		Target: Target{
			Kind:       TargetSQLite,
			Path:       ".procsync/procedures.db",
			Containers: map[string]string{},
			RetryMax:   4,
		},
		Archive: Archive{
			Region: "us-east-1",
		},
	}
}

// NewViper returns a viper instance with defaults, environment binding and
// the config file search path set. explicitPath, when non-empty, is the
// only file considered.
func NewViper(explicitPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("scripts_dir", d.ScriptsDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("source_exts", d.SourceExts)
	v.SetDefault("artifact_ext", d.ArtifactExt)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("compiler.kind", d.Compiler.Kind)
	v.SetDefault("compiler.command", d.Compiler.Command)
	v.SetDefault("compiler.parallelism", d.Compiler.Parallelism)
	v.SetDefault("compiler.es_target", d.Compiler.ESTarget)
	v.SetDefault("compiler.tsconfig", d.Compiler.Tsconfig)
	v.SetDefault("target.kind", d.Target.Kind)
	v.SetDefault("target.endpoint", d.Target.Endpoint)
	v.SetDefault("target.key", d.Target.Key)
	v.SetDefault("target.database", d.Target.Database)
	v.SetDefault("target.path", d.Target.Path)
	v.SetDefault("target.retry_max", d.Target.RetryMax)
	v.SetDefault("ledger.path", d.Ledger.Path)
	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.endpoint", d.Archive.Endpoint)
	v.SetDefault("archive.access_key", d.Archive.AccessKey)
	v.SetDefault("archive.secret_key", d.Archive.SecretKey)
	v.SetDefault("archive.region", d.Archive.Region)
	v.SetDefault("archive.bucket", d.Archive.Bucket)
	v.SetDefault("archive.prefix", d.Archive.Prefix)
	v.SetDefault("archive.use_ssl", d.Archive.UseSSL)

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return v
	}
	v.SetConfigName(FileName)
	for _, dir := range SearchDirs() {
		v.AddConfigPath(dir)
	}
	return v
}

// SearchDirs lists the directories searched for procsync.yaml, in order.
func SearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	add(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "procsync"))
	}
	if home, err := homedir.Dir(); err == nil {
		add(filepath.Join(home, ".config", "procsync"))
	}
	return dirs
}

// ReadFile reads the config file. A missing file is only an error when
// strict is set, i.e. when the path was given explicitly.
func ReadFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !strict {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// Load unmarshals v, expands ~ in paths and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	if c.SourceExts == nil {
		c.SourceExts = []string{}
	}
	if c.Target.Containers == nil {
		c.Target.Containers = map[string]string{}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	for _, p := range []*string{&c.ScriptsDir, &c.OutputDir, &c.Target.Path, &c.Ledger.Path, &c.Compiler.Tsconfig} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Layout returns the catalog layout described by the config.
func (c *Config) Layout() catalog.Layout {
	return catalog.Layout{
		ScriptsDir:  c.ScriptsDir,
		OutputDir:   c.OutputDir,
		SourceExts:  append([]string(nil), c.SourceExts...),
		ArtifactExt: c.ArtifactExt,
	}
}

// ValidationError lists every schema violation found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid config: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid config (%d problems): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks c against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(c)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	err := def.Unify(val).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var problems []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path := e.Path(); len(path) > 0 {
			msg = strings.Join(path, ".") + ": " + msg
		}
		problems = append(problems, msg)
	}
	return &ValidationError{Problems: problems}
}
