package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/hxloris/internal/config"
	"github.com/hxloris/hxloris/internal/logging"
	"github.com/hxloris/hxloris/internal/resolver"
	"github.com/hxloris/hxloris/internal/server"
	"github.com/hxloris/hxloris/internal/version"
)

// ConfigEnv 指定默认配置文件路径，优先级低于 --config。
const ConfigEnv = "HXLORIS_CONFIG"

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	resolveID   string
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := configFields("check_config", opts.configPath, cfg)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx := context.Background()

	if opts.resolveID != "" {
		return resolveOnce(ctx, cfg, logger, opts.resolveID)
	}

	// 启动顺序为“配置 → 对象存储 + 磁盘缓存 → 解析器 → Fiber server”，
	// 所有请求共享同一个解析器，才能按标识符合并回源。
	metrics := resolver.NewMetrics(prometheus.DefaultRegisterer)
	res, err := resolver.NewFromConfig(ctx, cfg, logger, metrics)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化解析器失败: %v\n", err)
		return 1
	}

	fields := configFields("startup", opts.configPath, cfg)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, res, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// resolveOnce 执行单次解析并把结果以 JSON 输出到 stdout，用于排查映射与凭证问题。
func resolveOnce(ctx context.Context, cfg *config.Config, logger *logrus.Logger, ident string) int {
	res, err := resolver.NewFromConfig(ctx, cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化解析器失败: %v\n", err)
		return 1
	}

	result, err := res.Resolve(ctx, ident)
	if err != nil {
		kind, _ := resolver.KindOf(err)
		fmt.Fprintf(stdErr, "解析失败 (%s): %v\n", kind, err)
		return 1
	}

	encoder := json.NewEncoder(stdOut)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(stdErr, "输出结果失败: %v\n", err)
		return 1
	}
	return 0
}

func configFields(action, configPath string, cfg *config.Config) logrus.Fields {
	fields := logging.BaseFields(action, configPath)
	fields["store_backend"] = cfg.Store.Backend
	fields["store_region"] = cfg.Store.Region
	fields["credentials"] = cfg.Store.AuthMode()
	fields["bucket_map"] = cfg.Placeholders()
	fields["cache_root"] = cfg.Global.CacheRoot
	return fields
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("hxloris", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		resolveID  string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 HXLORIS_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&resolveID, "resolve", "", "解析单个标识符并输出 JSON 结果")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(ConfigEnv)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		resolveID:   resolveID,
	}, nil
}

func startHTTPServer(cfg *config.Config, res resolver.ImageResolver, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Resolver: res,
	})
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
