package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	log "cn-chinese-link/logger"
)

var (
	// 全局Redis客户端实例
	globalClient *redis.Client
	once         sync.Once
	mu           sync.RWMutex
)

// Config Redis配置结构体
type Config struct {
	Host      string `mapstructure:"host" json:"host"`
	Port      int    `mapstructure:"port" json:"port"`
	Password  string `mapstructure:"password" json:"password"`
	DB        int    `mapstructure:"db" json:"db"`
	KeyPrefix string `mapstructure:"key_prefix" json:"key_prefix"`
	// 连接池配置
	PoolSize     int           `mapstructure:"pool_size" json:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" json:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         6379,
		KeyPrefix:    "cnlink",
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		DialTimeout:  5 * time.Second,
	}
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.PoolSize == 0 {
		c.PoolSize = def.PoolSize
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = def.DialTimeout
	}
}

// Options 把配置转换成go-redis的连接参数
func (c *Config) Options() *redis.Options {
	c.fillDefaults()
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		DialTimeout:  c.DialTimeout,
	}
}

// Init 初始化全局Redis客户端
func Init(config *Config) error {
	var initErr error

	once.Do(func() {
		if config == nil {
			config = DefaultConfig()
		}

		client := redis.NewClient(config.Options())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			initErr = fmt.Errorf("failed to connect to redis: %w", err)
			_ = client.Close()
			return
		}

		mu.Lock()
		globalClient = client
		mu.Unlock()

		log.Log("addr", client.Options().Addr).Info("Redis客户端初始化成功")
	})

	return initErr
}

// GetClient 获取Redis客户端实例
func GetClient() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()

	if globalClient == nil {
		log.Warn("Redis客户端未初始化")
		return nil
	}
	return globalClient
}

// IsHealthy 检查Redis连接健康状态
func IsHealthy(ctx context.Context) bool {
	client := GetClient()
	if client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return client.Ping(ctx).Err() == nil
}

// Close 关闭Redis客户端连接
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if globalClient == nil {
		return nil
	}
	err := globalClient.Close()
	globalClient = nil
	once = sync.Once{}
	if err != nil {
		log.Errorf("关闭Redis连接失败: %v", err)
		return err
	}
	log.Info("Redis连接已关闭")
	return nil
}

// GetKeyWithPrefix 获取带前缀的键名
func GetKeyWithPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", prefix, key)
}
