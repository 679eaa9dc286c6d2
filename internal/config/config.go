package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	MarketKR = "kr"
	MarketUS = "us"
)

type Config struct {
	App         AppConfig               `mapstructure:"app"`
	Server      ServerConfig            `mapstructure:"server"`
	Log         LogConfig               `mapstructure:"log"`
	DB          DBConfig                `mapstructure:"db"`
	Storage     StorageConfig           `mapstructure:"storage"`
	Cache       CacheConfig             `mapstructure:"cache"`
	Notify      NotifyConfig            `mapstructure:"notify"`
	Profiling   ProfilingConfig         `mapstructure:"profiling"`
	Coordinator CoordinatorConfig       `mapstructure:"coordinator"`
	Markets     map[string]MarketConfig `mapstructure:"markets"`
}

type AppConfig struct {
	Env    string `mapstructure:"env"`
	DryRun bool   `mapstructure:"dry_run"`
}

type ServerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	AuthSecret     string        `mapstructure:"auth_secret"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// StorageConfig selects where credential, cooldown and sell-floor state lives.
// Driver "file" keeps JSON blobs under Dir; "db" keeps them in postgres.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Dir    string `mapstructure:"dir"`
}

type CacheConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	QuoteTTL      time.Duration `mapstructure:"quote_ttl"`
}

type NotifyConfig struct {
	Events           []string      `mapstructure:"events"`
	WebhookURL       string        `mapstructure:"webhook_url"`
	TelegramBotToken string        `mapstructure:"telegram_bot_token"`
	TelegramChatID   string        `mapstructure:"telegram_chat_id"`
	SlackWebhookURL  string        `mapstructure:"slack_webhook_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
	AppName       string `mapstructure:"app_name"`
}

type CoordinatorConfig struct {
	OpenPoll   time.Duration `mapstructure:"open_poll"`
	ClosedPoll time.Duration `mapstructure:"closed_poll"`
	StatusLog  time.Duration `mapstructure:"status_log"`
}

type MarketConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Broker     string           `mapstructure:"broker"`
	Session    SessionConfig    `mapstructure:"session"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Cooldown   CooldownConfig   `mapstructure:"cooldown"`
	Order      OrderConfig      `mapstructure:"order"`
	Credential CredentialConfig `mapstructure:"credential"`
	KIS        KISConfig        `mapstructure:"kis"`
	Alpaca     AlpacaConfig     `mapstructure:"alpaca"`
	Paper      PaperConfig      `mapstructure:"paper"`
}

type SessionConfig struct {
	Timezone string   `mapstructure:"timezone"`
	Open     string   `mapstructure:"open"`
	Close    string   `mapstructure:"close"`
	Weekdays []string `mapstructure:"weekdays"`
}

// ScheduleConfig holds robfig/cron specs ("@every 30m" or six-field cron).
type ScheduleConfig struct {
	Sell       string `mapstructure:"sell"`
	Buy        string `mapstructure:"buy"`
	Credential string `mapstructure:"credential"`
	Sweep      string `mapstructure:"sweep"`
	Status     string `mapstructure:"status"`
}

type StrategyConfig struct {
	ProfitThreshold        float64                `mapstructure:"profit_threshold"`
	StopLossThreshold      float64                `mapstructure:"stop_loss_threshold"`
	TopN                   int                    `mapstructure:"top_n"`
	MaxPositions           int                    `mapstructure:"max_positions"`
	MaxShares              int64                  `mapstructure:"max_shares"`
	CheckPreviousSellPrice bool                   `mapstructure:"check_previous_sell_price"`
	TickRounding           string                 `mapstructure:"tick_rounding"`
	FilterSymbols          []string               `mapstructure:"filter_symbols"`
	WatchList              []string               `mapstructure:"watch_list"`
	Groups                 map[string]GroupConfig `mapstructure:"groups"`
}

type GroupConfig struct {
	Name      string   `mapstructure:"name"`
	Symbols   []string `mapstructure:"symbols"`
	WatchList []string `mapstructure:"watch_list"`
}

type CooldownConfig struct {
	Days int `mapstructure:"days"`
}

type OrderConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxAge           time.Duration `mapstructure:"max_age"`
	CancelOnShutdown bool          `mapstructure:"cancel_on_shutdown"`
}

type CredentialConfig struct {
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	ReissueWindow    time.Duration `mapstructure:"reissue_window"`
}

type KISConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AppKey    string        `mapstructure:"app_key"`
	AppSecret string        `mapstructure:"app_secret"`
	Account   string        `mapstructure:"account"`
	Paper     bool          `mapstructure:"paper"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

type PaperConfig struct {
	Cash        float64         `mapstructure:"cash"`
	Drift       float64         `mapstructure:"drift"`
	TokenSecret string          `mapstructure:"token_secret"`
	TokenTTL    time.Duration   `mapstructure:"token_ttl"`
	Quotes      []PaperQuote    `mapstructure:"quotes"`
	Positions   []PaperPosition `mapstructure:"positions"`
}

type PaperQuote struct {
	Symbol        string  `mapstructure:"symbol"`
	Price         float64 `mapstructure:"price"`
	PreviousClose float64 `mapstructure:"previous_close"`
}

type PaperPosition struct {
	Symbol   string  `mapstructure:"symbol"`
	Quantity int64   `mapstructure:"quantity"`
	AvgPrice float64 `mapstructure:"avg_price"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.dry_run", false)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_secret", "")
	v.SetDefault("server.stream_interval", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "data")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.quote_ttl", "60s")
	v.SetDefault("notify.events", []string{"stop_loss", "cancel_failed", "persistence_error", "auth_error"})
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.telegram_bot_token", "")
	v.SetDefault("notify.telegram_chat_id", "")
	v.SetDefault("notify.slack_webhook_url", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.server_address", "http://localhost:4040")
	v.SetDefault("profiling.app_name", "autostock")
	v.SetDefault("coordinator.open_poll", "30s")
	v.SetDefault("coordinator.closed_poll", "5m")
	v.SetDefault("coordinator.status_log", "1h")

	setMarketDefaults(v, MarketKR, marketDefaults{
		timezone:     "Asia/Seoul",
		open:         "09:00",
		close:        "15:30",
		stopLoss:     -0.10,
		cooldownDays: 50,
		maxShares:    1000,
		tick:         "krx",
		paperCash:    10000000,
	})
	setMarketDefaults(v, MarketUS, marketDefaults{
		timezone:     "America/New_York",
		open:         "09:30",
		close:        "16:00",
		stopLoss:     -0.15,
		cooldownDays: 100,
		maxShares:    100,
		tick:         "cent",
		paperCash:    10000,
	})
	v.SetDefault("markets.kr.broker", "paper")
	v.SetDefault("markets.us.broker", "paper")
	v.SetDefault("markets.kr.kis.base_url", "https://openapivts.koreainvestment.com:29443")
	v.SetDefault("markets.kr.kis.app_key", "")
	v.SetDefault("markets.kr.kis.app_secret", "")
	v.SetDefault("markets.kr.kis.account", "")
	v.SetDefault("markets.kr.kis.paper", true)
	v.SetDefault("markets.kr.kis.timeout", "10s")
	v.SetDefault("markets.us.alpaca.api_key", "")
	v.SetDefault("markets.us.alpaca.api_secret", "")
	v.SetDefault("markets.us.alpaca.base_url", "https://paper-api.alpaca.markets")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

type marketDefaults struct {
	timezone     string
	open         string
	close        string
	stopLoss     float64
	cooldownDays int
	maxShares    int64
	tick         string
	paperCash    float64
}

func setMarketDefaults(v *viper.Viper, market string, d marketDefaults) {
	p := "markets." + market + "."
	v.SetDefault(p+"enabled", true)
	v.SetDefault(p+"session.timezone", d.timezone)
	v.SetDefault(p+"session.open", d.open)
	v.SetDefault(p+"session.close", d.close)
	v.SetDefault(p+"session.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})
	v.SetDefault(p+"schedule.sell", "@every 30m")
	v.SetDefault(p+"schedule.buy", "@every 60m")
	v.SetDefault(p+"schedule.credential", "@every 30m")
	v.SetDefault(p+"schedule.sweep", "@every 20m")
	v.SetDefault(p+"schedule.status", "@every 5m")
	v.SetDefault(p+"strategy.profit_threshold", 0.05)
	v.SetDefault(p+"strategy.stop_loss_threshold", d.stopLoss)
	v.SetDefault(p+"strategy.top_n", 3)
	v.SetDefault(p+"strategy.max_positions", 3)
	v.SetDefault(p+"strategy.max_shares", d.maxShares)
	v.SetDefault(p+"strategy.check_previous_sell_price", true)
	v.SetDefault(p+"strategy.tick_rounding", d.tick)
	v.SetDefault(p+"cooldown.days", d.cooldownDays)
	v.SetDefault(p+"order.timeout", "20m")
	v.SetDefault(p+"order.poll_interval", "1m")
	v.SetDefault(p+"order.max_age", "1h")
	v.SetDefault(p+"order.cancel_on_shutdown", false)
	v.SetDefault(p+"credential.refresh_threshold", "5h")
	v.SetDefault(p+"credential.reissue_window", "24h")
	v.SetDefault(p+"paper.cash", d.paperCash)
	v.SetDefault(p+"paper.drift", 0.0)
	v.SetDefault(p+"paper.token_secret", "")
	v.SetDefault(p+"paper.token_ttl", "24h")
}
