package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"reelforge/internal/api"
	"reelforge/internal/config"
)

type commandContext struct {
	configFlag *string
	serverFlag *string
	tokenFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, serverFlag, tokenFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
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
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) client() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	server := cfg.Paths.APIBind
	if c.serverFlag != nil && strings.TrimSpace(*c.serverFlag) != "" {
		server = *c.serverFlag
	}
	token := cfg.Paths.APIToken
	if c.tokenFlag != nil && strings.TrimSpace(*c.tokenFlag) != "" {
		token = *c.tokenFlag
	}
	return api.NewClient(server, token), nil
}

func wrapDialError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: connection refused; start it with `reelforge daemon`")
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
