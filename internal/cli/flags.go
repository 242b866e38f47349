package cli

import (
	"fmt"
	"log"

	"github.com/urfave/cli/v3"

	"github.com/tobert/microdash/internal/backend"
)

// commonFlags are accepted by every command that talks to the platform.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Config file (JSON or YAML); default: project .microdash.json/.yaml",
		},
		&cli.StringFlag{
			Name:    "api-url",
			Usage:   "Platform API base URL",
			Sources: cli.EnvVars("MICRODASH_API_URL"),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
		},
	}
}

// loadConfig resolves the effective config for cmd: layered files first,
// then any flag the user set explicitly.
func loadConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	overlay := &Config{}
	if cmd.IsSet("api-url") {
		overlay.APIURL = cmd.String("api-url")
	}
	if cmd.IsSet("verbose") {
		overlay.Verbose = cmd.Bool("verbose")
	}
	applyServeFlags(cmd, overlay)
	cfg = MergeConfigs(cfg, overlay)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Verbose {
		log.Printf("🔧 Platform API: %s\n", cfg.APIURL)
	}
	return cfg, nil
}

// newClient builds the platform client described by cfg.
func newClient(cfg *Config) (backend.Client, error) {
	client, err := backend.NewHTTPClient(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}
	return client, nil
}

// clientFromCommand is loadConfig followed by newClient.
func clientFromCommand(cmd *cli.Command) (*Config, backend.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}
