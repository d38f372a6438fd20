// Package main はマイグレーションCLIのエントリポイント。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"dmcs/config"
)

const version = "1.0.0"

func main() {
	// .envファイルを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, config.Load(), os.Stdin, os.Stdout, os.Stderr, os.Args[1:]))
}

// run はコマンドを実行し、プロセスの終了コードを返す。
func run(ctx context.Context, cfg *config.Config, in io.Reader, out, errOut io.Writer, args []string) int {
	c := newCLI(cfg, in, out, errOut)
	defer c.close()

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, errCancelled) {
			c.report.warn("User cancelled")
			return 0
		}
		c.report.fail(err)
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dmcs",
		Short:         "Data migration runner for JavaScript and TypeScript migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
	}

	// グローバルフラグ（環境変数の値を既定値とする）
	flags := root.PersistentFlags()
	flags.StringVarP(&c.cfg.ConfigPath, "config", "c", c.cfg.ConfigPath, "Path to the state document (or set DMCS_CONFIG)")
	flags.StringVar(&c.cfg.RootDir, "root", c.cfg.RootDir, "Root folder for project migrations (or set DMCS_ROOT)")
	flags.StringVar(&c.cfg.Runtime, "runtime", c.cfg.Runtime, "Migration runtime: goja, node (or set DMCS_RUNTIME)")
	flags.StringVar(&c.cfg.TsconfigPath, "tsconfig", c.cfg.TsconfigPath, "Explicit tsconfig.json for TypeScript migrations")
	flags.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "Log level: DEBUG, INFO, WARN, ERROR")

	// サブコマンド登録
	root.AddCommand(c.initCmd())
	root.AddCommand(c.createCmd())
	root.AddCommand(c.migrateCmd())
	root.AddCommand(c.rollbackCmd())
	root.AddCommand(c.statusCmd())
	root.AddCommand(c.historyCmd())
	root.AddCommand(c.envAddCmd())
	root.AddCommand(c.envListCmd())
	root.AddCommand(c.projectAddCmd())
	root.AddCommand(c.projectListCmd())
	root.AddCommand(c.versionCmd())

	return root
}

// versionCmd はバージョン情報を表示する。
func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.out, "dmcs version %s\n", version)
		},
	}
}
