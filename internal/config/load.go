package config

import (
	"fmt"
	"os"

	"github.com/goschtalt/goschtalt"
	_ "github.com/goschtalt/yaml-decoder"
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/dealancer/validate.v2"
)

const applicationName = "pipelined"

// CLI mirrors the flags provideConfig reacts to, without importing the cmd
// package (which would create an import cycle through fx.Provide wiring).
type CLI struct {
	Show  bool
	Files []string
}

// Load collects configuration files and environment layering into a typed
// Config, the same goschtalt + validate.v2 pairing the teacher's
// provideConfig uses.
func Load(cli CLI) (*goschtalt.Config, *Config, error) {
	gs, err := goschtalt.New(
		goschtalt.StdCfgLayout(applicationName, cli.Files...),
		goschtalt.ConfigIs("two_words"),
		goschtalt.DefaultUnmarshalOptions(
			goschtalt.WithValidator(
				goschtalt.ValidatorFunc(validate.Validate),
			),
		),
		goschtalt.AddValue("built-in", goschtalt.Root, defaultConfig,
			goschtalt.AsDefault()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	if cli.Show {
		fmt.Fprintln(os.Stdout, gs.Explain().String())
		out, err := gs.Marshal()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		} else {
			fmt.Fprintln(os.Stdout, "## Final Configuration\n---\n"+string(out))
		}
		os.Exit(0)
	}

	var cfg Config
	if err := gs.Unmarshal(goschtalt.Root, &cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return gs, &cfg, nil
}

var defaultConfig = Config{
	MaxUsers:   64,
	AppVersion: "0.0.0-dev",
	Listen:     ":8080",
	StaticDir:  "./static",
	Logger: sallust.Config{
		EncoderConfig: sallust.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    "capital",
			EncodeTime:     "RFC3339Nano",
			EncodeDuration: "string",
			EncodeCaller:   "short",
		},
		Rotation: &sallust.Rotation{
			MaxSize:    1,
			MaxAge:     30,
			MaxBackups: 10,
		},
	},
}

// BuildLogger constructs the *zap.Logger from cfg.Logger, flipping
// dev-mode overrides exactly as the teacher's provideLogger does.
func BuildLogger(cfg *Config, dev bool) (*zap.Logger, error) {
	lc := cfg.Logger
	if dev {
		lc.EncoderConfig.EncodeLevel = "capitalColor"
		lc.EncoderConfig.EncodeTime = "RFC3339"
		lc.Level = "DEBUG"
		lc.Development = true
		lc.Encoding = "console"
		lc.OutputPaths = append(lc.OutputPaths, "stderr")
		lc.ErrorOutputPaths = append(lc.ErrorOutputPaths, "stderr")
	}
	return lc.Build()
}
