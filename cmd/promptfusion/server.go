package main

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/BaSui01/promptfusion/analysis"
	"github.com/BaSui01/promptfusion/api/handlers"
	"github.com/BaSui01/promptfusion/config"
	"github.com/BaSui01/promptfusion/internal/cache"
	"github.com/BaSui01/promptfusion/internal/metrics"
	"github.com/BaSui01/promptfusion/internal/server"
	"github.com/BaSui01/promptfusion/internal/telemetry"
	"github.com/BaSui01/promptfusion/interpolate"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/embedding"
	"github.com/BaSui01/promptfusion/llm/image"
	"github.com/BaSui01/promptfusion/llm/providers/openaicompat"
	"github.com/BaSui01/promptfusion/pipeline"
	"github.com/BaSui01/promptfusion/prompt"
	"github.com/BaSui01/promptfusion/synth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 是 PromptFusion 的主服务器
type Server struct {
	cfg      *config.Config
	reloader *config.Reloader
	logger   *zap.Logger
	level    zap.AtomicLevel
	otel     *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager
	listeners      *server.Group

	collector *metrics.Collector
	store     cache.Store

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(reloader *config.Reloader, logger *zap.Logger, level zap.AtomicLevel, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:      reloader.Current(),
		reloader: reloader,
		logger:   logger,
		level:    level,
		otel:     otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 装配组件并启动 API 与 Metrics 端口
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("promptfusion", s.logger, metrics.WithBuildInfo(Version, GitCommit))

	handler, err := s.buildHandler(s.collector)
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	s.httpManager = server.NewManager(handler, server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	if s.cfg.Server.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		}, s.logger)
	}

	s.listeners = server.NewGroup(s.logger, s.httpManager, s.metricsManager)
	if err := s.listeners.Start(); err != nil {
		return err
	}

	s.reloader.OnReload(s.onConfigReload)
	if err := s.reloader.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start config reloader: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort))
	return nil
}

// providerCheck 把返回 HealthStatus 的探测适配为 PingCheck
func providerCheck(probe func(ctx context.Context) (*llm.HealthStatus, error)) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		status, err := probe(ctx)
		if err != nil {
			return err
		}
		if status != nil && !status.Healthy {
			return fmt.Errorf("unhealthy (latency %s)", status.Latency)
		}
		return nil
	}
}

// =============================================================================
// 🔧 组件装配
// =============================================================================

// buildHandler 装配上游客户端、领域服务、handlers 与中间件链
func (s *Server) buildHandler(collector *metrics.Collector) (http.Handler, error) {
	cfg := s.cfg

	// 补全服务：所有调用经过 恢复 → 日志 → 指标 → 超时
	chat := llm.Wrap(
		openaicompat.New(openaicompat.Config{
			ProviderName: cfg.LLM.Provider,
			APIKey:       cfg.LLM.APIKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
			Timeout:      cfg.LLM.Timeout,
		}, s.logger),
		llm.RecoveryMiddleware(func(v any) {
			s.logger.Error("completion panicked", zap.Any("panic", v))
		}),
		llm.LoggingMiddleware(s.logger.With(zap.String("component", "llm"))),
		llm.MetricsMiddleware(collector),
		llm.TimeoutMiddleware(cfg.LLM.Timeout),
	)
	if cfg.LLM.APIKey == "" {
		s.logger.Warn("LLM API key not configured, analysis and refinement will fail",
			zap.String("env", config.EnvPrefix+"_LLM_API_KEY"))
	}

	// 视觉编码器（可选）
	var (
		encoder embedding.Encoder
		clip    *embedding.ClipProvider
	)
	if cfg.Vision.BaseURL != "" {
		clip = embedding.NewClipProvider(embedding.ClipConfig{
			APIKey:  cfg.Vision.APIKey,
			BaseURL: cfg.Vision.BaseURL,
			Model:   cfg.Vision.Model,
			Format:  embedding.InputFormat(cfg.Vision.Format),
			Timeout: cfg.Vision.Timeout,
		})
		encoder = clip
	} else {
		s.logger.Info("vision encoder not configured, image scoring disabled")
	}

	store, err := s.openCache()
	if err != nil {
		return nil, err
	}
	s.store = store

	// 分析
	extractor := analysis.NewExtractor(chat, analysis.ExtractorConfig{
		Model:           cfg.Analysis.Model,
		Temperature:     float32(cfg.Analysis.Temperature),
		MaxTokens:       cfg.Analysis.MaxTokens,
		MaxPromptTokens: cfg.Analysis.MaxPromptTokens,
		Timeout:         cfg.LLM.Timeout,
	}, s.logger)
	scorer := analysis.NewScorer(encoder, analysis.ScorerConfig{
		Concurrency: cfg.Vision.Concurrency,
		Timeout:     cfg.Vision.Timeout,
	}, collector, s.logger)

	// 阶段观测同时写入 Prometheus 与 OTel
	stages := pipeline.Observers(collector, telemetry.NewStageMeter(nil, s.logger))

	analyzerOpts := []analysis.AnalyzerOption{
		analysis.WithPipelineObserver(stages),
		analysis.WithCacheRecorder(collector),
	}
	if store != nil && cfg.Analysis.CacheTTL > 0 {
		analyzerOpts = append(analyzerOpts, analysis.WithCache(store, cfg.Analysis.CacheTTL))
	}
	analyzer := analysis.NewAnalyzer(extractor, scorer, s.logger, analyzerOpts...)

	// 提示词改写
	prompts := prompt.NewService(chat, prompt.Config{
		Model:       cfg.LLM.Model,
		Temperature: float32(cfg.LLM.Temperature),
		Timeout:     cfg.LLM.Timeout,
	}, s.logger)

	// 图像生成
	diffusion := image.NewDiffusionProvider(image.DiffusionConfig{
		BaseURL:      cfg.Image.Diffusion.URL,
		Sampler:      cfg.Image.Diffusion.Sampler,
		Timeout:      cfg.Image.Timeout,
		ProbeTimeout: cfg.Image.Diffusion.ProbeTimeout,
	})
	synthesizer := synth.New(s.logger,
		synth.WithOpenAI(image.NewOpenAIProvider(image.OpenAIConfig{
			APIKey:  cfg.Image.OpenAI.APIKey,
			BaseURL: cfg.Image.OpenAI.BaseURL,
			Timeout: cfg.Image.Timeout,
		})),
		synth.WithDiffusion(diffusion),
		synth.WithImagen(image.NewImagenProvider(image.ImagenConfig{
			APIKey:  cfg.Image.Imagen.APIKey,
			Model:   cfg.Image.Imagen.Model,
			Timeout: cfg.Image.Timeout,
		})),
		synth.WithRecorder(collector),
	)

	interpolator := interpolate.New(prompts, synthesizer, analyzer, s.logger,
		interpolate.WithObserver(stages))

	// 健康检查
	health := handlers.NewHealthHandler(s.logger)
	if store != nil {
		health.RegisterCheck(handlers.NewPingCheck("cache", store.Ping))
	}
	// 上游服务失败只降级
	if cfg.LLM.APIKey != "" {
		health.RegisterOptionalCheck(handlers.NewPingCheck("llm", providerCheck(chat.HealthCheck)))
	}
	if clip != nil {
		health.RegisterOptionalCheck(handlers.NewPingCheck("vision", providerCheck(clip.HealthCheck)))
	}
	if diffusion.Configured() {
		health.RegisterOptionalCheck(handlers.NewPingCheck("diffusion", diffusion.Available))
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux, routeHandlers{
		health:      health,
		analyze:     handlers.NewAnalyzeHandler(analyzer, s.logger),
		generate:    handlers.NewGenerateHandler(prompts, synthesizer, analyzer, s.logger),
		interpolate: handlers.NewInterpolateHandler(interpolator, s.logger),
		catalog:     handlers.NewCatalogHandler(synthesizer, prompts, s.logger),
		proxy:       handlers.NewProxyHandler(cfg.Server.ProxyTimeout, cfg.Server.ProxyMaxBytes, cfg.Server.ProxyAllowPrivate, s.logger),
	})

	skipAuthPaths := probePaths
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		// 位于 RequestLogger 外层，访问日志才能带上 trace_id
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(collector),
		CORS(cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(cfg.Server.APIKeys, skipAuthPaths, cfg.Server.AllowQueryAPIKey, s.logger),
		JWTAuth(cfg.Server.JWT, skipAuthPaths, s.logger),
	), nil
}

type routeHandlers struct {
	health      *handlers.HealthHandler
	analyze     *handlers.AnalyzeHandler
	generate    *handlers.GenerateHandler
	interpolate *handlers.InterpolateHandler
	catalog     *handlers.CatalogHandler
	proxy       *handlers.ProxyHandler
}

func (s *Server) registerRoutes(mux *http.ServeMux, h routeHandlers) {
	// 探活
	mux.HandleFunc("GET /api/health", h.health.HandleHealth)
	mux.HandleFunc("GET /healthz", h.health.HandleHealthz)
	mux.HandleFunc("GET /ready", h.health.HandleReady)
	mux.HandleFunc("GET /version", h.health.HandleVersion(Version, BuildTime, GitCommit))

	// 业务端点
	mux.HandleFunc("POST /api/analyze", h.analyze.HandleAnalyze)
	mux.HandleFunc("POST /api/generate", h.generate.HandleGenerate)
	mux.HandleFunc("POST /api/interpolate", h.interpolate.HandleInterpolate)
	mux.HandleFunc("GET /api/features/available", h.catalog.HandleFeatures)
	mux.HandleFunc("GET /api/models", h.catalog.HandleModels)
	mux.HandleFunc("POST /api/enhance", h.catalog.HandleEnhance)
	mux.HandleFunc("POST /api/proxy-image", h.proxy.HandleProxyImage)
}

// openCache 按配置创建缓存；Redis 不可达时回退到内存
func (s *Server) openCache() (cache.Store, error) {
	cfg := s.cfg
	switch cfg.Cache.Backend {
	case "none":
		return nil, nil
	case "redis":
		store, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			TLS:          cfg.Redis.TLS,
			DefaultTTL:   cfg.Cache.DefaultTTL,
			MaxRetries:   cfg.Redis.MaxRetries,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		}, s.logger)
		if err == nil {
			s.logger.Info("analysis cache backed by redis", zap.String("addr", cfg.Redis.Addr))
			return store, nil
		}
		s.logger.Warn("redis unavailable, falling back to in-memory cache", zap.Error(err))
		fallthrough
	case "memory", "":
		return cache.NewMemoryStore(cfg.Cache.DefaultTTL, nil, cache.WithCapacity(cfg.Cache.MaxEntries)), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// =============================================================================
// 🔁 配置热更新
// =============================================================================

// onConfigReload 只有日志级别可热更新，其余字段变化提示重启
func (s *Server) onConfigReload(oldCfg, newCfg *config.Config) {
	if oldCfg.Log.Level != newCfg.Log.Level {
		s.level.SetLevel(parseLevel(newCfg.Log.Level))
		s.logger.Info("log level updated",
			zap.String("from", oldCfg.Log.Level),
			zap.String("to", newCfg.Log.Level))
	}

	oldRest, newRest := *oldCfg, *newCfg
	oldRest.Log.Level, newRest.Log.Level = "", ""
	if !reflect.DeepEqual(oldRest, newRest) {
		s.logger.Warn("config changed on disk; restart required for changes other than log.level")
	}
}

func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到 ctx 结束（收到信号）或任一端口异常退出
func (s *Server) Wait(ctx context.Context) error {
	if s.listeners == nil {
		<-ctx.Done()
		return nil
	}
	return s.listeners.Wait(ctx)
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.reloader.Stop()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.listeners != nil {
		if err := s.listeners.Shutdown(ctx); err != nil {
			s.logger.Error("listener shutdown error", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("cache close error", zap.Error(err))
		}
	}
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
