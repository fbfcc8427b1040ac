package bootstrap

import (
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"mercato/internal/pkg/logger"
)

// Config 是所有服务共享的配置结构。
// 来源优先级：环境变量 > CONFIG_PATH 指定的 yaml 文件 > 内置默认值。
type Config struct {
	App struct {
		// 发布订单意图时使用的延迟级别主题，决定一致性校验的宽限期
		VerificationDelayLevel string `yaml:"verificationDelayLevel"`
		// 库存快照聚合任务的周期
		SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	} `yaml:"app"`

	Infra struct {
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Zookeeper struct {
			Addrs []string `yaml:"addrs"`
		} `yaml:"zookeeper"`
		Nacos struct {
			Addrs     string `yaml:"addrs"`
			Namespace string `yaml:"namespace"`
			Group     string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`
}

var (
	currentConfig Config
	configLock    sync.RWMutex
)

// Init 加载配置。必须在 StartService 之前调用一次。
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "configs/config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			logger.Logger.Fatal().Err(err).Str("path", path).Msg("invalid config file")
		}
		logger.Logger.Info().Str("path", path).Msg("Config loaded from file")
	}

	applyEnvOverrides(&cfg)

	configLock.Lock()
	currentConfig = cfg
	configLock.Unlock()
}

// GetCurrentConfig 返回当前配置的一个副本。
func GetCurrentConfig() Config {
	configLock.RLock()
	defer configLock.RUnlock()
	return currentConfig
}

func defaultConfig() Config {
	var cfg Config
	cfg.App.VerificationDelayLevel = "delay_topic_30s"
	cfg.App.SnapshotInterval = time.Hour
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	// clientFoundRows 让 RowsAffected 按命中行数而不是改动行数计，
	// 否则把状态原样重写一遍会被条件更新误判成条件不满足
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/mercato?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Zookeeper.Addrs = []string{"localhost:2181"}
	cfg.Infra.Nacos.Addrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("ZOOKEEPER_ADDRS"); v != "" {
		cfg.Infra.Zookeeper.Addrs = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.Addrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
