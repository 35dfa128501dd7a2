// =============================================================================
// 📦 PromptFusion 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Vision:    DefaultVisionConfig(),
		Image:     DefaultImageConfig(),
		Analysis:  DefaultAnalysisConfig(),
		Cache:     DefaultCacheConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        5000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    330 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
		ProxyTimeout:    10 * time.Second,
		ProxyMaxBytes:   10 << 20,
	}
}

// DefaultLLMConfig 返回默认补全服务配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Timeout:     60 * time.Second,
		Temperature: 0.7,
	}
}

// DefaultVisionConfig 返回默认视觉编码配置（未配置 URL，视觉打分关闭）
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		Format:      "jina",
		Model:       "jina-clip-v2",
		Timeout:     30 * time.Second,
		Concurrency: 4,
	}
}

// DefaultImageConfig 返回默认图像后端配置
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		OpenAI: OpenAIImageConfig{BaseURL: "https://api.openai.com"},
		Diffusion: DiffusionConfig{
			Sampler:      "Euler a",
			ProbeTimeout: 3 * time.Second,
		},
		Imagen:  ImagenConfig{Model: "imagen-4.0-generate-001"},
		Timeout: 300 * time.Second,
	}
}

// DefaultAnalysisConfig 返回默认分析配置
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Temperature:     0.3,
		MaxTokens:       1000,
		MaxPromptTokens: 2000,
		CacheTTL:        10 * time.Minute,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:    "memory",
		DefaultTTL: 5 * time.Minute,
		MaxEntries: 1000,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		KeyPrefix:    "promptfusion:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "promptfusion",
		SampleRate:   0.1,
	}
}
