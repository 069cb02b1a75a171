// apexctl 是 apexkit 能力束的运维命令行工具。
//
// 用法:
//
//	apexctl [全局选项] <命令>
//
// 全局选项:
//
//	-c, --config   配置文件路径 (YAML 或 JSON)
//	-t, --timeout  后端探测超时时间 (默认: 10s)
//
// 命令:
//
//	check          校验配置、装配能力束并探测后端可达性
//	status         输出能力束的运行状态快照 (JSON)
//
// 配置文件中的键可被 APEX_ 前缀的环境变量覆盖，
// 如 APEX_REDIS__ADDR=redis:6379。
//
// 退出码:
//
//	0: 成功（check 命令: 配置有效且后端可达）
//	1: 配置非法、装配失败或后端不可达
//	2: 参数错误
//
// 示例:
//
//	apexctl check -c config.yaml
//	apexctl status -c config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultTimeout = 10 * time.Second

// 版本信息，可通过 -ldflags 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "apexctl",
		Usage:   "apexkit 能力束运维工具",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "配置文件路径",
				Required: true,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "后端探测超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
	}
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp().Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr.err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// usageError 参数类错误，退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
