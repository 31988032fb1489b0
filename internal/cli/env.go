package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/procsync/internal/catalog"
	"github.com/roach88/procsync/internal/compiler"
	"github.com/roach88/procsync/internal/config"
	"github.com/roach88/procsync/internal/logging"
	"github.com/roach88/procsync/internal/objectstore"
	"github.com/roach88/procsync/internal/remote"
	"github.com/roach88/procsync/internal/remote/cosmos"
	"github.com/roach88/procsync/internal/store"
	"github.com/roach88/procsync/internal/syncer"
)

// env is everything a command needs, built from flags and config.
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	out     *OutputFormatter
	catalog *catalog.Catalog
	closers []io.Closer
}

func (e *env) Close() {
	_ = e.logger.Sync()
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

// loadConfig reads flags, PROCSYNC_* variables and the config file.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	v := config.NewViper(opts.ConfigFile)
	if opts.LogLevel != "" {
		v.Set("log_level", opts.LogLevel)
	}
	if err := config.ReadFile(v, opts.ConfigFile != ""); err != nil {
		return nil, commandError(ErrCodeConfig, "failed to read config", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, commandError(ErrCodeConfig, "invalid configuration", err)
	}
	return cfg, nil
}

// newEnv loads the config and builds the logger and catalog.
func newEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.Verbose && level != "debug" {
		level = "debug"
	}
	logger, err := logging.New(level, opts.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, commandError(ErrCodeConfig, "invalid log level", err)
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
			Color:     !opts.NoColor,
		},
		catalog: catalog.New(cfg.Layout()),
	}, nil
}

// newCompiler builds the configured compiler.
func (e *env) newCompiler() (compiler.Compiler, error) {
	layout := e.cfg.Layout()
	switch e.cfg.Compiler.Kind {
	case config.CompilerCommand:
		c, err := compiler.NewCommand(layout, e.cfg.Compiler.Command)
		if err != nil {
			return nil, commandError(ErrCodeConfig, "invalid compiler command", err)
		}
		return c, nil
	default:
		c, err := compiler.NewEsbuild(layout, compiler.EsbuildOptions{
			Target:   e.cfg.Compiler.ESTarget,
			Tsconfig: e.cfg.Compiler.Tsconfig,
		})
		if err != nil {
			return nil, commandError(ErrCodeConfig, "invalid esbuild settings", err)
		}
		return c, nil
	}
}

// openStore opens a SQLite state file, creating its directory, and
// registers it for Close. The same path is opened once.
func (e *env) openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, st)
	return st, nil
}

// newRegistry builds a directory for every discovered container. A
// discovery failure leaves the registry empty; the engine reports it.
func (e *env) newRegistry() (*remote.Registry, *store.Store, error) {
	reg := remote.NewRegistry()
	names, _ := e.catalog.ListContainers()
	t := e.cfg.Target

	switch t.Kind {
	case config.TargetCosmos:
		client, err := cosmos.New(cosmos.Config{
			Endpoint: t.Endpoint,
			Key:      t.Key,
			Database: t.Database,
			RetryMax: t.RetryMax,
			Logger:   e.logger.Named("cosmos"),
		})
		if err != nil {
			return nil, nil, commandError(ErrCodeTarget, "invalid cosmos target", err)
		}
		for _, name := range names {
			reg.Register(name, client.Collection(t.Collection(name)))
		}
		return reg, nil, nil
	default:
		st, err := e.openStore(t.Path)
		if err != nil {
			return nil, nil, commandError(ErrCodeTarget, "failed to open sqlite target", err)
		}
		for _, name := range names {
			reg.Register(name, st.Directory(t.Collection(name)))
		}
		return reg, st, nil
	}
}

// newEngine wires the engine for mode. Compile-only runs never open the
// target, ledger writes still happen.
func (e *env) newEngine(opts *RootOptions, mode syncer.Mode) (*syncer.Engine, error) {
	comp, err := e.newCompiler()
	if err != nil {
		return nil, err
	}

	reg := remote.NewRegistry()
	var target *store.Store
	if mode != syncer.ModeCompile {
		reg, target, err = e.newRegistry()
		if err != nil {
			return nil, err
		}
	}

	engOpts := []syncer.Option{
		syncer.WithLogger(e.logger),
		syncer.WithCompileParallelism(e.cfg.Compiler.Parallelism),
	}
	if opts.RunIDs != nil {
		engOpts = append(engOpts, syncer.WithRunIDGenerator(opts.RunIDs))
	}
	if opts.Now != nil {
		engOpts = append(engOpts, syncer.WithNow(opts.Now))
	}

	if p := e.cfg.Ledger.Path; p != "" {
		ledger := target
		if target == nil || filepath.Clean(p) != filepath.Clean(e.cfg.Target.Path) {
			ledger, err = e.openStore(p)
			if err != nil {
				return nil, commandError(ErrCodeLedger, "failed to open ledger", err)
			}
		}
		engOpts = append(engOpts, syncer.WithLedger(ledger))
	}

	if a := e.cfg.Archive; a.Enabled && mode == syncer.ModeSync {
		archive, err := objectstore.New(objectstore.Config{
			Endpoint:  a.Endpoint,
			AccessKey: a.AccessKey,
			SecretKey: a.SecretKey,
			Region:    a.Region,
			UseSSL:    a.UseSSL,
			Bucket:    a.Bucket,
			Prefix:    a.Prefix,
			Extension: e.cfg.ArtifactExt,
		})
		if err != nil {
			return nil, commandError(ErrCodeConfig, "invalid archive settings", err)
		}
		engOpts = append(engOpts, syncer.WithArchiver(archive))
	}

	return syncer.New(e.catalog, comp, reg, engOpts...), nil
}
