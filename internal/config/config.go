package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Wiki      WikiConfig      `mapstructure:"wiki"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	SendBufferSize  int           `mapstructure:"send_buffer_size"`
}

// GameConfig 游戏配置
type GameConfig struct {
	CodeSalt          string        `mapstructure:"code_salt"`           // 房间码编码盐值
	CodeMinLength     int           `mapstructure:"code_min_length"`     // 房间码最小长度
	CodeAlphabet      string        `mapstructure:"code_alphabet"`       // 房间码字符集（空则使用默认）
	MinOptions        int           `mapstructure:"min_options"`         // 开局所需最少候选人数
	SubscriptionTTL   time.Duration `mapstructure:"subscription_ttl"`    // 订阅过期时间（兜底清理）
	GraceWindow       time.Duration `mapstructure:"grace_window"`        // 断线宽限时间
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`      // 断线清扫周期
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`  // 保活探测周期
	MaxSessions       int           `mapstructure:"max_sessions"`        // 最大连接会话数
}

// WikiConfig 词条查询服务配置
type WikiConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("WIKI_GUESS")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}

		err = validate(cfg)
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 524288)
	v.SetDefault("websocket.ping_interval", "20s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer_size", 256)

	// 游戏默认配置
	v.SetDefault("game.code_salt", "wiki-guess")
	v.SetDefault("game.code_min_length", 4)
	v.SetDefault("game.code_alphabet", "")
	v.SetDefault("game.min_options", 2)
	v.SetDefault("game.subscription_ttl", "6h")
	v.SetDefault("game.grace_window", "1m")
	v.SetDefault("game.sweep_interval", "1m")
	v.SetDefault("game.keepalive_interval", "20s")
	v.SetDefault("game.max_sessions", 10000)

	// 词条查询默认配置
	v.SetDefault("wiki.base_url", "https://en.wikipedia.org/api/rest_v1")
	v.SetDefault("wiki.timeout", "5s")
	v.SetDefault("wiki.user_agent", "wiki-guess/1.0")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "wiki-guess.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 7)
	v.SetDefault("log.file.max_backups", 10)
	v.SetDefault("log.file.compress", true)
}

// validate 校验配置合法性
func validate(c *Config) error {
	if c.Game.MinOptions < 2 {
		return fmt.Errorf("game.min_options 不能小于2: %d", c.Game.MinOptions)
	}
	if c.Game.GraceWindow <= 0 {
		return fmt.Errorf("game.grace_window 必须为正值: %v", c.Game.GraceWindow)
	}
	if c.Game.SubscriptionTTL <= 0 {
		return fmt.Errorf("game.subscription_ttl 必须为正值: %v", c.Game.SubscriptionTTL)
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongTimeout {
		return fmt.Errorf("websocket.ping_interval 必须小于 pong_timeout")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			return
		}
		if err := validate(newCfg); err != nil {
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}
	})
}
