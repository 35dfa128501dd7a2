// PromptFusion 服务入口。
//
//	promptfusion serve [--config config.yaml] [--env-file .env]
//	promptfusion health [--addr http://localhost:5000] [--ready]
//	promptfusion version
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/promptfusion/config"
	"github.com/BaSui01/promptfusion/internal/telemetry"
)

// 构建时通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// command 子命令，run 返回进程退出码
type command struct {
	summary string
	run     func(args []string, stdout, stderr io.Writer) int
}

var commands = map[string]command{
	"serve":   {"Start the HTTP API server", runServe},
	"health":  {"Probe a running server", runHealthCheck},
	"version": {"Print build information", runVersion},
}

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr)
		return 2
	}
	return cmd.run(args[1:], stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "PromptFusion - prompt analysis and image generation backend")
	fmt.Fprintln(w, "\nUsage:\n  promptfusion <command> [options]\n\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s  %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nRun 'promptfusion <command> -h' for command options.")
}

// =============================================================================
// 🖥️ serve
// =============================================================================

func runServe(args []string, _, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML config file; watched for log level changes")
	envFile := fs.String("env-file", ".env", "dotenv file, ignored when missing")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	loader := config.NewLoader().WithEnvFile(*envFile)
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	logger, level := initLogger(cfg.Log)
	defer logger.Sync()
	logger.Info("starting PromptFusion",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("telemetry disabled", zap.Error(err))
	}

	reloader := config.NewReloader(loader, cfg, config.WithReloadLogger(logger))
	srv := NewServer(reloader, logger, level, otelProviders)
	if err := srv.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		srv.Shutdown()
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := 0
	if err := srv.Wait(ctx); err != nil {
		logger.Error("listener failed", zap.Error(err))
		code = 1
	}
	srv.Shutdown()
	logger.Info("PromptFusion stopped")
	return code
}

// =============================================================================
// 🏥 health
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:5000", "server base URL")
	ready := fs.Bool("ready", false, "probe /ready (dependency checks) instead of /api/health")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := "/api/health"
	if *ready {
		path = "/ready"
	}
	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(*addr + path)
	if err != nil {
		fmt.Fprintf(stderr, "health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "health check failed: %s returned %d\n", path, resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

func runVersion(_ []string, stdout, _ io.Writer) int {
	fmt.Fprintf(stdout, "PromptFusion %s\n  Build Time: %s\n  Git Commit: %s\n", Version, BuildTime, GitCommit)
	return 0
}

// =============================================================================
// 🔧 日志
// =============================================================================

// initLogger 返回 logger 与可热更新的级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	console := cfg.Format == "console"

	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoding := "json"
	if console {
		encoder = zap.NewDevelopmentEncoderConfig()
		encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	logger, err := zap.Config{
		Level:            level,
		Development:      console,
		Encoding:         encoding,
		EncoderConfig:    encoder,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger, level
}
