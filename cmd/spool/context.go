package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"spool/internal/config"
	"spool/internal/engine"
	"spool/internal/logging"
)

type commandContext struct {
	configFlag  *string
	queueFlag   *string
	backendFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, queueFlag, backendFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		queueFlag:   queueFlag,
		backendFlag: backendFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.queueFlag != nil && strings.TrimSpace(*c.queueFlag) != "" {
			cfg.Queue = strings.TrimSpace(*c.queueFlag)
		}
		if c.backendFlag != nil && strings.TrimSpace(*c.backendFlag) != "" {
			cfg.Backend = strings.ToLower(strings.TrimSpace(*c.backendFlag))
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withEngine opens the configured backend for the duration of one command.
func (c *commandContext) withEngine(fn func(*engine.Engine) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	return fn(eng)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
