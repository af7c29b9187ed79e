package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Supported storage and queue engines.
const (
	EngineBolt     = "bolt"
	EngineRedis    = "redis"
	EnginePostgres = "postgres"
	EngineAMQP     = "amqp"
	EngineNone     = "none"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string         `yaml:"git_commit" envconfig:"LCAT_GIT_COMMIT"`
	GitTag                  string         `yaml:"git_tag" envconfig:"LCAT_GIT_TAG"`
	BuildTime               string         `yaml:"build_time" envconfig:"LCAT_BUILD_TIME"`
	IsProduction            bool           `yaml:"is_production" envconfig:"LCAT_IS_PRODUCTION"`
	LogLevel                zapcore.Level  `yaml:"log_level" envconfig:"LCAT_LOG_LEVEL"`
	LogFolder               string         `yaml:"log_folder" envconfig:"LCAT_LOG_FOLDER"`
	LogMaxSize              int            `yaml:"log_max_size" envconfig:"LCAT_LOG_MAX_SIZE"`
	OpsEndpointsEnable      bool           `yaml:"ops_endpoints_enable" envconfig:"LCAT_OPS_ENDPOINTS_ENABLE"`
	ProfilerEndpointsEnable bool           `yaml:"profiler_endpoints_enable" envconfig:"LCAT_PROFILER_ENDPOINTS_ENABLE"`
	Server                  ServerConfig   `yaml:"server"`
	CORS                    CORSConfig     `yaml:"cors"`
	Storage                 StorageConfig  `yaml:"storage"`
	Queue                   QueueConfig    `yaml:"queue"`
	BoltDB                  BoltDBConfig   `yaml:"boltdb"`
	Archive                 BoltDBConfig   `yaml:"archive" envconfig:"ARCHIVE"`
	Redis                   RedisConfig    `yaml:"redis"`
	Postgres                PostgresConfig `yaml:"postgres"`
	AMQP                    AMQPConfig     `yaml:"amqp"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"LCAT_SERVER_HOST"`
	Port            string        `yaml:"port" envconfig:"LCAT_SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"LCAT_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"LCAT_SERVER_WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"LCAT_SERVER_REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"LCAT_SERVER_SHUTDOWN_TIMEOUT"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"LCAT_CORS_ALLOWED_ORIGINS"`
}

type StorageConfig struct {
	Engine string `yaml:"engine" envconfig:"LCAT_STORAGE_ENGINE"`
}

type QueueConfig struct {
	Engine string `yaml:"engine" envconfig:"LCAT_QUEUE_ENGINE"`
}

// BoltDBConfig is shared by the primary bolt storage and the archive.
// Envconfig builds the variable names from the split field names
// (LCAT_BOLTDB_FILE_PATH, LCAT_ARCHIVE_FILE_PATH).
type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout"`
	BucketName string        `yaml:"bucket_name" split_words:"true"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"LCAT_REDIS_HOST"`
	Port          string        `yaml:"port" envconfig:"LCAT_REDIS_PORT"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"LCAT_REDIS_DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"LCAT_REDIS_READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"LCAT_REDIS_WRITE_TIMEOUT"`
	PoolSize      int           `yaml:"pool_size" envconfig:"LCAT_REDIS_POOL_SIZE"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"LCAT_REDIS_POOL_TIMEOUT"`
	Username      string        `yaml:"username" envconfig:"LCAT_REDIS_USERNAME"`
	Password      string        `yaml:"password" envconfig:"LCAT_REDIS_PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"LCAT_REDIS_DATABASE_INDEX"`
}

type PostgresConfig struct {
	DSN            string        `yaml:"dsn" envconfig:"LCAT_POSTGRES_DSN" json:"-"`
	MaxConns       int32         `yaml:"max_conns" envconfig:"LCAT_POSTGRES_MAX_CONNS"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"LCAT_POSTGRES_CONNECT_TIMEOUT"`
}

type AMQPConfig struct {
	URL      string `yaml:"url" envconfig:"LCAT_AMQP_URL" json:"-"`
	Exchange string `yaml:"exchange" envconfig:"LCAT_AMQP_EXCHANGE"`
	Queue    string `yaml:"queue" envconfig:"LCAT_AMQP_QUEUE"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	if err = yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables into the App config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if config.Storage.Engine == "" {
		config.Storage.Engine = EngineBolt
	}
	if config.Queue.Engine == "" {
		config.Queue.Engine = EngineNone
	}
	if len(config.CORS.AllowedOrigins) == 0 {
		config.CORS.AllowedOrigins = []string{"*"}
	}
	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}
	if config.LogFolder == "" {
		config.LogFolder = "./logs"
	}
	if config.Server.RequestTimeout <= 0 {
		config.Server.RequestTimeout = 10 * time.Second
	}
	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}
	if config.Postgres.ConnectTimeout <= 0 {
		config.Postgres.ConnectTimeout = 5 * time.Second
	}

	switch config.Storage.Engine {
	case EngineBolt:
		if len(config.BoltDB.FilePath) == 0 || len(config.BoltDB.BucketName) == 0 {
			return errors.New("make sure to set valid boltdb file path and bucket name in configuration file")
		}
	case EngineRedis:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
	case EnginePostgres:
		if len(config.Postgres.DSN) == 0 {
			return errors.New("make sure to set a valid postgres dsn in configuration file")
		}
	default:
		return fmt.Errorf("unsupported storage engine %q", config.Storage.Engine)
	}

	switch config.Queue.Engine {
	case EngineNone:
	case EngineRedis:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port for the redis queue")
		}
	case EngineAMQP:
		if len(config.AMQP.URL) == 0 || len(config.AMQP.Exchange) == 0 || len(config.AMQP.Queue) == 0 {
			return errors.New("make sure to set valid amqp url, exchange and queue for the amqp queue")
		}
	default:
		return fmt.Errorf("unsupported queue engine %q", config.Queue.Engine)
	}

	if config.Queue.Engine != EngineNone {
		if len(config.Archive.FilePath) == 0 || len(config.Archive.BucketName) == 0 {
			return errors.New("make sure to set valid archive file path and bucket name when a queue is enabled")
		}
		if config.Storage.Engine == EngineBolt && config.Archive.FilePath == config.BoltDB.FilePath {
			return errors.New("archive file path must differ from the boltdb storage file path")
		}
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data. The env file is optional.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %w", err)
	}

	err = godotenv.Load("./config.env")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %w", err)
	}

	// Use environment variables with prefix `LCAT`.
	err = LoadConfigEnvs("LCAT", config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %w", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %w", err)
	}
	return config, nil
}
