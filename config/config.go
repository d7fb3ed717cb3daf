// Package config holds the stdview CLI settings. Values come from an
// optional TOML file; command line flags are applied on top by the caller.
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stdview/errors"
)

type Config struct {
	Log    Log    `toml:"log"`
	Target Target `toml:"target"`
	Print  Print  `toml:"print"`
}

type Log struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `toml:"level"`
	// Format is "console" or "json".
	Format string `toml:"format"`
}

type Target struct {
	Binary string `toml:"binary"`
	Pid    int    `toml:"pid"`
	// Bias is added to every address found in the binary, for position
	// independent executables.
	Bias uint64 `toml:"bias"`
}

type Print struct {
	Depth       int `toml:"depth"`
	MaxElements int `toml:"max_elements"`
}

func Default() Config {
	return Config{
		Log:   Log{Level: "info", Format: "console"},
		Print: Print{Depth: 3, MaxElements: 100},
	}
}

// Load reads path over the defaults. Unknown keys are an error so typos do
// not pass silently.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "%s: parse TOML", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, errors.Newf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Newf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Target.Pid < 0 {
		return errors.Newf("target.pid must not be negative, got %d", c.Target.Pid)
	}
	if c.Print.Depth < 1 {
		return errors.Newf("print.depth must be at least 1, got %d", c.Print.Depth)
	}
	if c.Print.MaxElements < 1 {
		return errors.Newf("print.max_elements must be at least 1, got %d", c.Print.MaxElements)
	}
	return nil
}

// Logger builds the process logger. Output goes to stderr so it never mixes
// with dumped values on stdout.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}
	if c.Log.Format == "json" {
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(level)
		zc.OutputPaths = []string{"stderr"}
		zc.ErrorOutputPaths = []string{"stderr"}
		return zc.Build()
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.TimeKey = ""
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(os.Stderr),
		level,
	)), nil
}
