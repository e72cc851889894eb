package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/gorm/logger"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`    // 服务器配置
	Log       LogConfig       `mapstructure:"log"`       // 日志配置
	Database  DatabaseConfig  `mapstructure:"database"`  // PostgreSQL配置
	Redis     RedisConfig     `mapstructure:"redis"`     // Redis配置
	Streams   StreamConfig    `mapstructure:"streams"`   // 事件流配置
	Queues    QueueConfig     `mapstructure:"queues"`    // 赛事队列配置
	Dedup     DedupConfig     `mapstructure:"dedup"`     // 去重配置
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`  // 流水线阈值
	Indexing  IndexingConfig  `mapstructure:"indexing"`  // 切块配置
	Retrieval RetrievalConfig `mapstructure:"retrieval"` // 检索配置
	Retry     RetryConfig     `mapstructure:"retry"`     // 重试策略
	Reasoning ReasoningConfig `mapstructure:"reasoning"` // 推理服务配置
	Vector    VectorConfig    `mapstructure:"vector"`    // 向量库配置
	Notify    NotifyConfig    `mapstructure:"notify"`    // 通知配置
	Schedule  ScheduleConfig  `mapstructure:"schedule"`  // 定时任务配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// LogConfig 日志配置
type LogConfig struct {
	Level     string `mapstructure:"level"`      // logrus 级别
	Format    string `mapstructure:"format"`     // text/json
	GormLevel string `mapstructure:"gorm_level"` // gorm SQL 日志级别：silent/error/warn/info
}

// DatabaseConfig PostgreSQL数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL 形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`     // 单次查询超时
}

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StreamConfig 原始事件流与消费组配置
type StreamConfig struct {
	RawEvents          string        `mapstructure:"raw_events"`          // 原始事件流
	ConsumerGroup      string        `mapstructure:"consumer_group"`      // 消费组名称
	ConsumerName       string        `mapstructure:"consumer_name"`       // 消费者名称，为空时使用 worker-{pid}
	Notifications      string        `mapstructure:"notifications"`       // 通知输出流
	ReadCount          int64         `mapstructure:"read_count"`          // 单次读取条数
	Block              time.Duration `mapstructure:"block"`               // XREADGROUP 阻塞时间
	ReclaimIdle        time.Duration `mapstructure:"reclaim_idle"`        // 未确认条目的空闲阈值
	ReclaimCount       int64         `mapstructure:"reclaim_count"`       // 单次回收条数
	ReclaimInterval    time.Duration `mapstructure:"reclaim_interval"`    // 回收扫描间隔
	RenewInterval      time.Duration `mapstructure:"renew_interval"`      // 处理中条目的续期间隔，须小于 reclaim_idle
	NotificationMaxLen int64         `mapstructure:"notification_maxlen"` // 通知流近似最大长度，0 不裁剪
}

// QueueConfig 赛事队列配置
type QueueConfig struct {
	Normal                 string        `mapstructure:"normal"`                   // 普通队列
	Priority               string        `mapstructure:"priority"`                 // 优先队列
	PopTimeout             time.Duration `mapstructure:"pop_timeout"`              // BLPOP 超时
	MaxConsecutivePriority int           `mapstructure:"max_consecutive_priority"` // 连续优先出队上限，0 表示严格优先
}

// DedupConfig 去重配置
type DedupConfig struct {
	TTL    time.Duration `mapstructure:"ttl"`
	Prefix string        `mapstructure:"prefix"`
}

// PipelineConfig 流水线阈值
type PipelineConfig struct {
	BreakingThreshold         int           `mapstructure:"breaking_threshold"`          // 突发新闻重要度阈值
	ImpactConfidenceThreshold float64       `mapstructure:"impact_confidence_threshold"` // 影响置信度阈值
	LookaheadHours            int           `mapstructure:"lookahead_hours"`             // 受影响赛事的前瞻窗口
	IdleSleep                 time.Duration `mapstructure:"idle_sleep"`                  // 无任务时休眠
}

// IndexingConfig 切块配置
type IndexingConfig struct {
	ShortDocWords int `mapstructure:"short_doc_words"` // 少于该词数的文档只生成一个切块
	MaxChunkWords int `mapstructure:"max_chunk_words"` // 单个切块最大词数
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	DaysBack           int `mapstructure:"days_back"`
	MaxChunksPerSearch int `mapstructure:"max_chunks_per_search"`
	TopChunks          int `mapstructure:"top_chunks"`
}

// RetryConfig 推理服务调用的重试策略
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// ReasoningConfig 推理服务（Gemini）配置
type ReasoningConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	EmbeddingDim   int32         `mapstructure:"embedding_dim"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// VectorConfig 向量库（Weaviate）配置
type VectorConfig struct {
	BaseURL string        `mapstructure:"base_url"` // Weaviate 地址
	Class   string        `mapstructure:"class"`    // 类名
	Timeout time.Duration `mapstructure:"timeout"`  // 请求超时
	Proxy   string        `mapstructure:"proxy"`    // 代理地址
	APIKey  string        `mapstructure:"api_key"`  // 可选鉴权
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	NATSURL     string `mapstructure:"nats_url"`     // 为空则只写 Redis 流
	NATSSubject string `mapstructure:"nats_subject"` // NATS 主题
}

// ScheduleConfig 定时任务配置
type ScheduleConfig struct {
	ScanCron         string `mapstructure:"scan_cron"`          // 赛事扫描 Cron 表达式
	ReconcileCron    string `mapstructure:"reconcile_cron"`     // 向量补齐 Cron 表达式
	ScanHorizonHours int    `mapstructure:"scan_horizon_hours"` // 扫描未来多少小时内的赛事
	ReconcileBatch   int    `mapstructure:"reconcile_batch"`    // 单次补齐切块数
}

// LoadConfig 加载配置文件（./config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("./config")
}

// LoadConfigFrom 从指定目录加载 config.yaml；文件不存在时使用默认值
func LoadConfigFrom(dir string) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	if cfg.Streams.ConsumerName == "" {
		cfg.Streams.ConsumerName = fmt.Sprintf("worker-%d", os.Getpid())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验相互约束的配置项
func (c *Config) Validate() error {
	worst := c.WorstReasoningCall()
	if c.Streams.ReclaimIdle <= worst {
		return fmt.Errorf("streams.reclaim_idle (%s) 必须大于单次推理调用的最长耗时 %s（max_attempts × reasoning.timeout + 退避）",
			c.Streams.ReclaimIdle, worst)
	}
	if c.Streams.RenewInterval <= 0 || c.Streams.RenewInterval >= c.Streams.ReclaimIdle {
		return fmt.Errorf("streams.renew_interval (%s) 必须大于 0 且小于 streams.reclaim_idle (%s)",
			c.Streams.RenewInterval, c.Streams.ReclaimIdle)
	}
	return nil
}

// WorstReasoningCall 按重试策略计算一次推理调用的最长耗时：每次尝试都超时，且每次退避都取最大抖动
func (c *Config) WorstReasoningCall() time.Duration {
	r := c.Retry
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	mult := r.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	total := time.Duration(attempts) * c.Reasoning.Timeout
	wait := float64(r.BackoffBase)
	for i := 1; i < attempts; i++ {
		backoff := time.Duration(wait)
		if r.BackoffMax > 0 && backoff > r.BackoffMax {
			backoff = r.BackoffMax
		}
		total += time.Duration(float64(backoff) * (1 + r.Jitter))
		wait *= mult
	}
	return total
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.gorm_level", "warn")

	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.query_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("streams.raw_events", "stream:raw_events")
	v.SetDefault("streams.consumer_group", "worker-group")
	v.SetDefault("streams.notifications", "stream:notifications")
	v.SetDefault("streams.read_count", 10)
	v.SetDefault("streams.block", time.Second)
	v.SetDefault("streams.reclaim_idle", 5*time.Minute)
	v.SetDefault("streams.reclaim_count", 10)
	v.SetDefault("streams.reclaim_interval", 30*time.Second)
	v.SetDefault("streams.renew_interval", 20*time.Second)
	v.SetDefault("streams.notification_maxlen", 10000)

	v.SetDefault("queues.normal", "queue:fixtures")
	v.SetDefault("queues.priority", "queue:fixtures:priority")
	v.SetDefault("queues.pop_timeout", time.Second)
	v.SetDefault("queues.max_consecutive_priority", 20)

	v.SetDefault("dedup.ttl", 7*24*time.Hour)
	v.SetDefault("dedup.prefix", "dedup:")

	v.SetDefault("pipeline.breaking_threshold", 7)
	v.SetDefault("pipeline.impact_confidence_threshold", 0.6)
	v.SetDefault("pipeline.lookahead_hours", 48)
	v.SetDefault("pipeline.idle_sleep", 5*time.Second)

	v.SetDefault("indexing.short_doc_words", 150)
	v.SetDefault("indexing.max_chunk_words", 700)

	v.SetDefault("retrieval.days_back", 14)
	v.SetDefault("retrieval.max_chunks_per_search", 100)
	v.SetDefault("retrieval.top_chunks", 20)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_base", 2*time.Second)
	v.SetDefault("retry.backoff_max", 30*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)

	v.SetDefault("reasoning.model", "gemini-2.5-flash")
	v.SetDefault("reasoning.embedding_model", "gemini-embedding-001")
	v.SetDefault("reasoning.embedding_dim", 768)
	v.SetDefault("reasoning.timeout", 60*time.Second)

	v.SetDefault("vector.base_url", "http://localhost:8081")
	v.SetDefault("vector.class", "ContentChunk")
	v.SetDefault("vector.timeout", 15*time.Second)

	v.SetDefault("notify.nats_subject", "matchpulse.notifications")

	v.SetDefault("schedule.scan_cron", "0 */30 * * * *")
	v.SetDefault("schedule.reconcile_cron", "0 */10 * * * *")
	v.SetDefault("schedule.scan_horizon_hours", 72)
	v.SetDefault("schedule.reconcile_batch", 200)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Reasoning.APIKey = v
	}
	if v := os.Getenv("WEAVIATE_URL"); v != "" {
		cfg.Vector.BaseURL = v
	}
	if v := os.Getenv("WEAVIATE_API_KEY"); v != "" {
		cfg.Vector.APIKey = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.Notify.NATSURL = v
	}
}

// GormLogLevel 将配置中的 gorm 日志级别映射为 gorm logger 级别
func (l LogConfig) GormLogLevel() logger.LogLevel {
	switch strings.ToLower(l.GormLevel) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
