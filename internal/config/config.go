package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "./config/local.yaml"

type Config struct {
	Env          string `yaml:"env" env:"ENV" env-default:"prod"`
	WorkspaceID  string `yaml:"workspace_id" env:"WORKSPACE_ID" env-required:"true"`
	Timezone     string `yaml:"timezone" env:"TIMEZONE" env-default:"UTC"`
	HTTPServer   `yaml:"http_server"`
	LocalDBPath  string   `yaml:"local_db_path" env:"LOCAL_DB_PATH" env-default:"./data/farm.db"`
	MySQL        MySQL    `yaml:"mysql"`
	ErrorLogPath string   `yaml:"error_log_path" env:"ERROR_LOG_PATH" env-default:"errors.log"`
	CORSOrigins  []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:5173"`

	AdminLogin string `yaml:"admin_login" env:"ADMIN_LOGIN"`
	AdminPass  string `yaml:"admin_pass" env:"ADMIN_PASS"`

	Planning    Planning    `yaml:"planning"`
	Impact      Impact      `yaml:"impact"`
	Feasibility Feasibility `yaml:"feasibility"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:4001"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// MySQL is the shared workspace backend. When disabled the farm runs from the local store only.
type MySQL struct {
	Enabled bool   `yaml:"enabled" env:"MYSQL_ENABLED" env-default:"false"`
	DSN     string `yaml:"dsn" env:"MYSQL_DSN"`
}

type Planning struct {
	HorizonDays       int           `yaml:"horizon_days" env-default:"7"`
	Debounce          time.Duration `yaml:"debounce" env-default:"1500ms"`
	PlanLogLimit      int           `yaml:"plan_log_limit" env-default:"100"`
	DayCheckInterval  time.Duration `yaml:"day_check_interval" env-default:"1m"`
	MirrorRetryPeriod time.Duration `yaml:"mirror_retry_period" env-default:"30s"`
}

type Impact struct {
	MaxDominoHops      int           `yaml:"max_domino_hops" env-default:"5"`
	MaxMergeCandidates int           `yaml:"max_merge_candidates" env-default:"3"`
	MinMeaningfulDelay time.Duration `yaml:"min_meaningful_delay" env-default:"6m"`
	UndoWindow         time.Duration `yaml:"undo_window" env-default:"30s"`
}

type Feasibility struct {
	SafetyMargin        float64 `yaml:"safety_margin" env-default:"0.2"`
	NightPlateLimit     int     `yaml:"night_plate_limit" env-default:"1"`
	SlackThresholdHours float64 `yaml:"slack_threshold_hours" env-default:"8"`
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func MustConfig() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return &cfg
}
