package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

// ChunkConfig 连接无关传输下的分片几何与重传策略
type ChunkConfig struct {
	// 单个分片的字节数，同时是 UDP 帧的载荷容量
	PayloadSize int
	// 每个窗口的分片数
	Window       int
	AckTimeout   time.Duration
	MaxRetries   int
	EndAttempts  int
	EndDelay     time.Duration
	PollInterval time.Duration
}

// WindowBytes 窗口字节数
func (c ChunkConfig) WindowBytes() int {
	return c.PayloadSize * c.Window
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config 客户端和服务端共用
type Config struct {
	Transport string
	Address   string
	Port      int
	OutputDir string
	// TCP 帧的载荷容量
	StreamPayloadSize int
	Chunk             ChunkConfig
	HandshakeTimeout  time.Duration
	LogLevel          string
	StatusAddr        string
	Redis             RedisConfig
}

// Endpoint host:port
func (c Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// PayloadCapacity 当前传输方式的帧载荷容量
func (c Config) PayloadCapacity() int {
	if c.Transport == TransportTCP {
		return c.StreamPayloadSize
	}
	return c.Chunk.PayloadSize
}

// SetDefaults 默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("transport", TransportUDP)
	v.SetDefault("address", "127.0.0.1")
	v.SetDefault("port", 5500)
	v.SetDefault("output_dir", ".")
	v.SetDefault("stream.payload_size", "10000")
	v.SetDefault("chunk.payload_size", "500")
	v.SetDefault("chunk.window", "20")
	v.SetDefault("chunk.ack_timeout", "300ms")
	v.SetDefault("chunk.max_retries", 5)
	v.SetDefault("chunk.end_attempts", 5)
	v.SetDefault("chunk.end_delay", "100ms")
	v.SetDefault("chunk.poll_interval", "20ms")
	v.SetDefault("handshake_timeout", "5s")
	v.SetDefault("log_level", "info")
	v.SetDefault("status.addr", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
}

// NewViper 默认值 + 配置文件 + FT_ 前缀环境变量
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("FT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./conf")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// LoadConfig 从 viper 读取并校验配置
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Transport:        strings.ToLower(v.GetString("transport")),
		Address:          v.GetString("address"),
		Port:             v.GetInt("port"),
		OutputDir:        v.GetString("output_dir"),
		HandshakeTimeout: v.GetDuration("handshake_timeout"),
		LogLevel:         v.GetString("log_level"),
		StatusAddr:       v.GetString("status.addr"),
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Chunk: ChunkConfig{
			AckTimeout:   v.GetDuration("chunk.ack_timeout"),
			MaxRetries:   v.GetInt("chunk.max_retries"),
			EndAttempts:  v.GetInt("chunk.end_attempts"),
			EndDelay:     v.GetDuration("chunk.end_delay"),
			PollInterval: v.GetDuration("chunk.poll_interval"),
		},
	}

	var err error
	if cfg.StreamPayloadSize, err = GetConfInt(v, "stream.payload_size"); err != nil {
		return Config{}, err
	}
	if cfg.Chunk.PayloadSize, err = GetConfInt(v, "chunk.payload_size"); err != nil {
		return Config{}, err
	}
	if cfg.Chunk.Window, err = GetConfInt(v, "chunk.window"); err != nil {
		return Config{}, err
	}

	if cfg.Transport != TransportTCP && cfg.Transport != TransportUDP {
		return Config{}, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.StreamPayloadSize <= 0 || cfg.Chunk.PayloadSize <= 0 || cfg.Chunk.Window <= 0 {
		return Config{}, fmt.Errorf("invalid chunk geometry: stream %d, chunk %d x %d",
			cfg.StreamPayloadSize, cfg.Chunk.PayloadSize, cfg.Chunk.Window)
	}
	if cfg.Chunk.AckTimeout <= 0 || cfg.Chunk.PollInterval <= 0 {
		return Config{}, fmt.Errorf("invalid chunk timing: ack %v, poll %v", cfg.Chunk.AckTimeout, cfg.Chunk.PollInterval)
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid handshake timeout %v", cfg.HandshakeTimeout)
	}
	if cfg.Chunk.MaxRetries < 0 || cfg.Chunk.EndAttempts <= 0 {
		return Config{}, fmt.Errorf("invalid retry policy: max_retries %d, end_attempts %d", cfg.Chunk.MaxRetries, cfg.Chunk.EndAttempts)
	}
	return cfg, nil
}

// GetConfInt 从配置文件中读取整数，支持 "1 << n"
func GetConfInt(config *viper.Viper, configStr string) (int, error) {
	raw := strings.TrimSpace(config.GetString(configStr))
	atoi, err := strconv.Atoi(raw)
	if err == nil {
		return atoi, nil
	}
	// 不是整数，则考虑是否为位移表达式
	atoi, err = parseBitwiseExpression(raw)
	if err != nil {
		return 0, fmt.Errorf("error reading %s: %w", configStr, err)
	}
	return atoi, nil
}

// parseBitwiseExpression 解析位移表达式
func parseBitwiseExpression(expression string) (int, error) {
	left, right, found := strings.Cut(expression, "<<")
	if !found {
		return 0, fmt.Errorf("invalid shift expression %q", expression)
	}
	base, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, err
	}
	shiftCount, err := strconv.Atoi(strings.TrimSpace(right))
	if err != nil {
		return 0, err
	}
	if shiftCount < 0 || shiftCount > 30 {
		return 0, fmt.Errorf("shift %d out of range", shiftCount)
	}
	return base << shiftCount, nil
}
