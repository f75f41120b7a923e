// 程序入口：读取配置、初始化日志与 Redis，分派到导入、查询与服务子命令
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"geodis/internal/config"
	"geodis/internal/geoerr"
	"geodis/internal/iprange"
	"geodis/internal/logger"
	"geodis/internal/store"
	"geodis/internal/utils"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app：子命令共享的依赖，在 PersistentPreRunE 中构造
type app struct {
	cfg config.Config
	rc  *redis.Client
	st  *store.Store
	idx *iprange.Index
	out io.Writer
}

func (a *app) open(ctx context.Context) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	a.cfg = config.Load()
	a.rc = utils.OpenRedis(a.cfg.Redis)
	if err := a.rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "addr", a.cfg.Redis.Addr(), "err", err)
		return geoerr.Unavailable("ping "+a.cfg.Redis.Addr(), err)
	}
	l.Debug("redis_ping_ok", "addr", a.cfg.Redis.Addr())
	a.st = store.New(a.rc, store.WithWindow(a.cfg.Window))
	a.idx = iprange.NewIndex(a.st)
	return nil
}

func (a *app) close() {
	if a.rc != nil {
		_ = a.rc.Close()
	}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "geodis",
		Short:         "geospatial and IP proximity resolver backed by Redis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.AddCommand(
		newNearestCmd(a),
		newIPCmd(a),
		newIPAuxCmd(a),
		newStatsCmd(a),
		newImportCmd(a),
		newServeCmd(a),
	)
	return root
}

func main() {
	a := &app{out: os.Stdout}
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		a.close()
		os.Exit(exitCode(err))
	}
}
