// =============================================================================
// 📦 PromptFusion 配置加载器
// =============================================================================
// 统一配置加载，支持 .env + YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithEnvFile(".env").
//	    WithConfigPath("config.yaml").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（.env 只补充未设置的变量）
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量统一前缀
const EnvPrefix = "PROMPTFUSION"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 PromptFusion 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Vision    VisionConfig    `yaml:"vision" env:"VISION"`
	Image     ImageConfig     `yaml:"image" env:"IMAGE"`
	Analysis  AnalysisConfig  `yaml:"analysis" env:"ANALYSIS"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`

	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时需覆盖最慢的生成后端
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 允许的跨域来源；为空时拒绝跨域
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// 每个 IP 的限流参数
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// 非空时启用 X-API-Key 认证
	APIKeys          []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`

	JWT JWTConfig `yaml:"jwt" env:"JWT"`

	// 图片代理
	ProxyTimeout  time.Duration `yaml:"proxy_timeout" env:"PROXY_TIMEOUT"`
	ProxyMaxBytes int64         `yaml:"proxy_max_bytes" env:"PROXY_MAX_BYTES"`
	// 允许抓取回环与内网地址（仅用于本地开发）
	ProxyAllowPrivate bool `yaml:"proxy_allow_private" env:"PROXY_ALLOW_PRIVATE"`
}

// JWTConfig JWT 认证配置；Secret 与 PublicKey 均为空时不启用
type JWTConfig struct {
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled reports whether any verification key is configured.
func (j JWTConfig) Enabled() bool { return j.Secret != "" || j.PublicKey != "" }

// LLMConfig 补全服务配置（OpenAI 兼容）
type LLMConfig struct {
	Provider string        `yaml:"provider" env:"PROVIDER"`
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Model    string        `yaml:"model" env:"MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 改写提示词时的温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
}

// VisionConfig 联合嵌入（CLIP）服务配置；BaseURL 为空时视觉打分降级
type VisionConfig struct {
	// 请求格式: jina, infinity
	Format      string        `yaml:"format" env:"FORMAT"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Concurrency int           `yaml:"concurrency" env:"CONCURRENCY"`
}

// ImageConfig 图像生成后端配置
type ImageConfig struct {
	OpenAI    OpenAIImageConfig `yaml:"openai" env:"OPENAI"`
	Diffusion DiffusionConfig   `yaml:"diffusion" env:"DIFFUSION"`
	Imagen    ImagenConfig      `yaml:"imagen" env:"IMAGEN"`
	Timeout   time.Duration     `yaml:"timeout" env:"TIMEOUT"`
}

// OpenAIImageConfig DALL·E 后端；APIKey 为空时沿用 llm.api_key
type OpenAIImageConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

// DiffusionConfig 本地 AUTOMATIC1111 运行时；URL 为空表示未安装
type DiffusionConfig struct {
	URL          string        `yaml:"url" env:"URL"`
	Sampler      string        `yaml:"sampler" env:"SAMPLER"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
}

// ImagenConfig Google Imagen；APIKey 为空时不注册
type ImagenConfig struct {
	APIKey string `yaml:"api_key" env:"API_KEY"`
	Model  string `yaml:"model" env:"MODEL"`
}

// AnalysisConfig 特征分析配置
type AnalysisConfig struct {
	// 抽取模型；为空时沿用 llm.model
	Model           string        `yaml:"model" env:"MODEL"`
	Temperature     float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens       int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens" env:"MAX_PROMPT_TOKENS"`
	// 纯文本分析结果缓存时长；0 表示不缓存
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// CacheConfig 缓存后端配置
type CacheConfig struct {
	// 后端: memory, redis, none
	Backend    string        `yaml:"backend" env:"BACKEND"`
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// 内存后端的条目上限，超出时淘汰最久未使用的条目
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
}

// RedisConfig Redis 配置（cache.backend=redis 时使用）
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	TLS          bool   `yaml:"tls" env:"TLS"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	MaxRetries   int    `yaml:"max_retries" env:"MAX_RETRIES"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envFile    string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvFile 设置 .env 文件路径；文件不存在时忽略
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 返回配置文件路径
func (l *Loader) ConfigPath() string { return l.configPath }

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := LoadEnvFile(l.envFile); err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.applyFallbacks()

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// LoadEnvFile 将 .env 载入进程环境，不覆盖已存在的变量
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// applyFallbacks 填充依赖其他段的空字段
func (c *Config) applyFallbacks() {
	if c.Image.OpenAI.APIKey == "" {
		c.Image.OpenAI.APIKey = c.LLM.APIKey
	}
	if c.Analysis.Model == "" {
		c.Analysis.Model = c.LLM.Model
	}
}

// setFieldsFromEnv 递归设置结构体字段，键名为 PREFIX_SECTION_FIELD
func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按 "30s" 形式解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := parts[:0]
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 校验
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if !validPort(c.Server.HTTPPort) {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort != 0 {
		if !validPort(c.Server.MetricsPort) {
			errs = append(errs, "invalid metrics port")
		} else if c.Server.MetricsPort == c.Server.HTTPPort {
			errs = append(errs, "metrics port must differ from HTTP port")
		}
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		errs = append(errs, "rate limit must not be negative")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm temperature must be between 0 and 2")
	}
	if c.Analysis.Temperature < 0 || c.Analysis.Temperature > 2 {
		errs = append(errs, "analysis temperature must be between 0 and 2")
	}
	if c.Analysis.MaxPromptTokens < 0 {
		errs = append(errs, "analysis max_prompt_tokens must not be negative")
	}
	if c.Analysis.CacheTTL < 0 {
		errs = append(errs, "analysis cache_ttl must not be negative")
	}

	switch c.Vision.Format {
	case "", "jina", "infinity":
	default:
		errs = append(errs, fmt.Sprintf("unknown vision format %q (supported: jina, infinity)", c.Vision.Format))
	}

	switch c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Sprintf("unknown cache backend %q (supported: memory, redis, none)", c.Cache.Backend))
	}
	if c.Cache.DefaultTTL < 0 {
		errs = append(errs, "cache default_ttl must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, "cache max_entries must not be negative")
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "redis addr is required when cache backend is redis")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }
