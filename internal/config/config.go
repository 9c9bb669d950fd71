package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/blues/poolparty/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Chain    ChainConfig       `mapstructure:"chain"`
	Pool     PoolConfig        `mapstructure:"pool"`
	Admins   map[string]string `mapstructure:"admins"` // 管理员标识 -> 账户地址
	Task     TaskConfig        `mapstructure:"task"`
	Log      LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	Mode         string   `mapstructure:"mode"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres | sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"` // sqlite 文件路径或 DSN
	LogLevel string `mapstructure:"log_level"`
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainType      string                    `mapstructure:"chain_type"`      // 链类型 (ethereum, polygon, etc.)
	ChainId        int64                     `mapstructure:"chain_id"`        // 链ID
	RpcUrl         string                    `mapstructure:"rpc_url"`         // RPC节点URL
	CustodyKeys    []string                  `mapstructure:"custody_keys"`    // 资金池托管账户私钥，每个池独占一个
	Confirmations  uint64                    `mapstructure:"confirmations"`   // 入金确认块数
	ReceiptTimeout int                       `mapstructure:"receipt_timeout"` // 等待交易上链的秒数
	GasLimit       uint64                    `mapstructure:"gas_limit"`       // 为 0 时估算
	Contracts      map[string]ContractConfig `mapstructure:"contracts"`       // 可作为销售目标的合约
}

// ContractConfig 单个合约配置
type ContractConfig struct {
	Address string `mapstructure:"address"`  // 合约地址
	ABIPath string `mapstructure:"abi_path"` // ABI文件路径，为空时只能使用签名形式的入口
	Enabled bool   `mapstructure:"enabled"`  // 是否启用此合约
}

// PoolConfig 创建资金池时的默认值
type PoolConfig struct {
	DueDiligenceDuration time.Duration `mapstructure:"due_diligence_duration"`
	FeePercentage        uint64        `mapstructure:"fee_percentage"`
}

type TaskConfig struct {
	Interval int `mapstructure:"interval"` // 秒
	Workers  int `mapstructure:"workers"`  // 资产同步并发数
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "poolparty")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "poolparty.db")
	v.SetDefault("database.log_level", "silent")
	v.SetDefault("chain.chain_type", "ethereum")
	v.SetDefault("chain.confirmations", 12)
	v.SetDefault("chain.receipt_timeout", 120)
	v.SetDefault("pool.due_diligence_duration", "72h")
	v.SetDefault("pool.fee_percentage", 0)
	v.SetDefault("task.interval", 60)
	v.SetDefault("task.workers", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")

	// 自动读取环境变量，例如 POOLPARTY_DATABASE_HOST
	v.SetEnvPrefix("POOLPARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load 在默认路径查找 config.yaml，找不到时只使用默认值与环境变量
func Load() *Config {
	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/poolparty")

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}
	return cfg
}

// LoadFile 读取指定配置文件
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 基本校验
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Pool.FeePercentage > 100 {
		return fmt.Errorf("pool.fee_percentage %d above 100", c.Pool.FeePercentage)
	}
	if c.Pool.DueDiligenceDuration < 0 {
		return fmt.Errorf("pool.due_diligence_duration must not be negative")
	}
	if c.Task.Interval <= 0 {
		return fmt.Errorf("task.interval must be positive")
	}
	if c.Task.Workers <= 0 {
		c.Task.Workers = 1
	}
	return nil
}
