package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"tradesim/internal/config"
	"tradesim/internal/logger"

	"github.com/joho/godotenv"
)

const usage = `usage: tradesim <command> [flags]

commands:
  run     回测单个策略
  batch   并行回测多个策略
  fetch   从交易所拉取历史 K 线写入本地库
  serve   启动 HTTP API
  check   校验配置与策略文件
`

func main() {
	_ = godotenv.Load(".env")
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		fmt.Fprint(os.Stdout, usage)
		return
	}

	cfgPath := os.Getenv("TRADESIM_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	closers, err := setupLogOutput(cfg.App)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	logger.SetLevel(cfg.App.LogLevel)
	logger.Debugf("✓ 配置加载成功（环境=%s，策略=%s）", cfg.App.Env, cfg.Strategies.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	switch cmd {
	case "run":
		runErr = runCommand(ctx, cfg, args, os.Stdout)
	case "batch":
		runErr = batchCommand(ctx, cfg, args, os.Stdout)
	case "fetch":
		runErr = fetchCommand(ctx, cfg, args, os.Stdout)
	case "serve":
		runErr = serveCommand(ctx, cfg)
	case "check":
		runErr = checkCommand(cfg, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if runErr != nil {
		stop()
		log.Printf("%s 失败: %v", cmd, runErr)
		os.Exit(1)
	}
}

func setupLogOutput(app config.AppConfig) ([]io.Closer, error) {
	var closers []io.Closer
	file, err := openAppend(app.LogPath)
	if err != nil {
		return nil, err
	}
	out := io.Writer(os.Stderr)
	if file != nil {
		closers = append(closers, file)
		out = io.MultiWriter(os.Stderr, file)
	}
	log.SetOutput(out)
	logger.SetOutput(out)

	journal, err := openAppend(app.JournalPath)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	if journal != nil {
		closers = append(closers, journal)
		logger.SetJournalWriter(journal)
	}
	return closers, nil
}

func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
