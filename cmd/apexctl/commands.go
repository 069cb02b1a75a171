package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/apexkit/pkg/capability/xcap"
	"github.com/omeyang/apexkit/pkg/config/xconf"
)

// envPrefix 环境变量覆盖前缀。
const envPrefix = "APEX_"

func createCommands() []*cli.Command {
	return []*cli.Command{
		createCheckCommand(),
		createStatusCommand(),
	}
}

// loadConfig 从文件加载能力束配置，文件值覆盖默认值，
// 环境变量再覆盖文件值。
func loadConfig(path string) (xcap.Config, error) {
	cfg := xcap.DefaultConfig()

	c, err := xconf.New(path, xconf.WithEnvPrefix(envPrefix))
	if err != nil {
		return cfg, err
	}
	if err := c.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildBundle 装配能力束，调用方负责 Close。
func buildBundle(cmd *cli.Command) (*xcap.Bundle, error) {
	path := cmd.String("config")
	cfg, err := loadConfig(path)
	if err != nil {
		if errors.Is(err, xconf.ErrEmptyPath) || errors.Is(err, xconf.ErrUnsupportedFormat) {
			return nil, &usageError{err: err}
		}
		return nil, err
	}
	return xcap.Build(cfg)
}

func createCheckCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "校验配置、装配能力束并探测后端可达性",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			bundle, err := buildBundle(cmd)
			if err != nil {
				return err
			}
			defer bundle.Close(context.WithoutCancel(ctx))

			probeCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()
			if err := bundle.Health(probeCtx); err != nil {
				return fmt.Errorf("backend unreachable: %w", err)
			}

			fmt.Println("ok")
			return nil
		},
	}
}

func createStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "输出能力束的运行状态快照 (JSON)",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			bundle, err := buildBundle(cmd)
			if err != nil {
				return err
			}
			defer bundle.Close(context.WithoutCancel(ctx))

			statCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()
			snap, err := bundle.Stats(statCtx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}
