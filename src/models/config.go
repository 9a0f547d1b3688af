package models

// MConfig Structure
type MConfig struct {
	Name     string          `yaml:"name"`
	Host     string          `yaml:"host"`
	Port     int             `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	Storage  MStorageConfig  `yaml:"storage"`
	Feed     MFeedConfig     `yaml:"feed"`
	Registry MRegistryConfig `yaml:"registry"`
	Pricing  MPricingConfig  `yaml:"pricing"`
	Session  MSessionConfig  `yaml:"session"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MFeedConfig struct {
	URL                string `yaml:"url"`
	APIKey             string `yaml:"api_key"`      // Overridable via FEED_API_KEY
	AccessToken        string `yaml:"access_token"` // Overridable via FEED_ACCESS_TOKEN
	ReconnectBaseDelay int    `yaml:"reconnect_base_delay_seconds"`
	ReconnectMaxDelay  int    `yaml:"reconnect_max_delay_seconds"`
	PriceDivisor       int64  `yaml:"price_divisor"` // Fixed-point scale of feed prices, e.g. 100 for paise
}

type MRegistryConfig struct {
	MasterPath  string   `yaml:"master_path"` // Local file or http(s) URL of the instrument master
	Underlyings []string `yaml:"underlyings"`
	Segments    []string `yaml:"segments"`
}

type MPricingConfig struct {
	RiskFreeRate    float64 `yaml:"risk_free_rate"` // Overridable via RISK_FREE_RATE
	SpreadThreshold float64 `yaml:"spread_threshold"`
	DefaultIV       float64 `yaml:"default_iv"`
	GridPadFactor   float64 `yaml:"grid_pad_factor"`
}

type MSessionConfig struct {
	MarketMIC        string `yaml:"market_mic"`
	TradeStartHour   int    `yaml:"trade_start_hour"`
	TradeStartMinute int    `yaml:"trade_start_minute"`
	TradeEndHour     int    `yaml:"trade_end_hour"`
	TradeEndMinute   int    `yaml:"trade_end_minute"`
	SnapshotStart    int    `yaml:"snapshot_start_hour"`
	SnapshotEnd      int    `yaml:"snapshot_end_hour"`
	GraceMinutes     int    `yaml:"grace_minutes"`
	Timezone         string `yaml:"timezone"`
}
