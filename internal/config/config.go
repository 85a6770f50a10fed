package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// Values come from env; a .env file in the working directory is loaded first when present.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Voice    VoiceConfig
	SMS      SMSConfig
	VIP      VIPConfig
	Campaign CampaignConfig
	Leads    LeadsConfig
}

type AppConfig struct {
	Env  string
	Port int

	// Timezone fixes the calendar used for day buckets and same-day recovery checks.
	Timezone string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	MaxOpenConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	// OperatorPassword unlocks the dialer. Plain text or a bcrypt hash ($2a$/$2b$/$2y$).
	OperatorPassword string
	// ViewerPassword is optional and grants read-only dashboard access.
	ViewerPassword string

	JWTSecret  string
	JWTIssuer  string
	SessionTTL time.Duration
}

type VoiceConfig struct {
	BaseURL string
	Token   string
	AudioID string
}

type SMSConfig struct {
	URL     string
	AuthKey string
}

type VIPConfig struct {
	BaseURL string
	Token   string
}

type CampaignConfig struct {
	SettleDelay    time.Duration
	DialTimeout    time.Duration
	StatusTimeout  time.Duration
	SMSTimeout     time.Duration
	VIPTimeout     time.Duration
	PersistTimeout time.Duration

	// MaxConcurrency bounds lead pipelines per batch in this process.
	MaxConcurrency int
	// GlobalConcurrency bounds in-flight calls across all API instances (Redis). 0 disables it.
	GlobalConcurrency int

	CountryCode string
	DedupTTL    time.Duration
}

type LeadsConfig struct {
	Tables       []string
	DefaultTable string
	PageSize     int
	// MaxRows stops full fetches after this many rows. 0 means unlimited.
	MaxRows int
}

const (
	defaultVoiceBaseURL = "https://gateway.disparopro.com.br"
	defaultSMSURL       = "https://sms.comtele.com.br/api/v2/send"
)

func Load() (Config, error) {
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = requiredInt(parseErrs, "APP_PORT")
	c.App.Timezone = strings.TrimSpace(os.Getenv("APP_TIMEZONE"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = requiredInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns, parseErrs = optionalInt(parseErrs, "DB_MAX_OPEN_CONNS")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = requiredInt(parseErrs, "REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.OperatorPassword = os.Getenv("AUTH_OPERATOR_PASSWORD")
	c.Auth.ViewerPassword = os.Getenv("AUTH_VIEWER_PASSWORD")
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.SessionTTL, parseErrs = optionalDuration(parseErrs, "JWT_SESSION_TTL")

	c.Voice.BaseURL = strings.TrimSpace(os.Getenv("VOICE_BASE_URL"))
	c.Voice.Token = os.Getenv("VOICE_TOKEN")
	c.Voice.AudioID = strings.TrimSpace(os.Getenv("VOICE_AUDIO_ID"))

	c.SMS.URL = strings.TrimSpace(os.Getenv("SMS_URL"))
	c.SMS.AuthKey = os.Getenv("SMS_AUTH_KEY")

	c.VIP.BaseURL = strings.TrimSpace(os.Getenv("VIP_BASE_URL"))
	c.VIP.Token = os.Getenv("VIP_TOKEN")

	c.Campaign.SettleDelay, parseErrs = optionalDuration(parseErrs, "CAMPAIGN_SETTLE_DELAY")
	c.Campaign.DialTimeout, parseErrs = optionalDuration(parseErrs, "CAMPAIGN_DIAL_TIMEOUT")
	c.Campaign.StatusTimeout, parseErrs = optionalDuration(parseErrs, "CAMPAIGN_STATUS_TIMEOUT")
	c.Campaign.SMSTimeout, parseErrs = optionalDuration(parseErrs, "CAMPAIGN_SMS_TIMEOUT")
	c.Campaign.VIPTimeout, parseErrs = optionalDuration(parseErrs, "CAMPAIGN_VIP_TIMEOUT")
	c.Campaign.PersistTimeout, parseErrs = optionalDuration(parseErrs, "CAMPAIGN_PERSIST_TIMEOUT")
	c.Campaign.MaxConcurrency, parseErrs = optionalInt(parseErrs, "CAMPAIGN_MAX_CONCURRENCY")
	c.Campaign.GlobalConcurrency, parseErrs = optionalInt(parseErrs, "CAMPAIGN_GLOBAL_CONCURRENCY")
	c.Campaign.CountryCode = strings.TrimSpace(os.Getenv("CAMPAIGN_COUNTRY_CODE"))
	c.Campaign.DedupTTL, parseErrs = optionalDuration(parseErrs, "CAMPAIGN_DEDUP_TTL")

	c.Leads.Tables = splitList(os.Getenv("LEADS_TABLES"))
	c.Leads.DefaultTable = strings.TrimSpace(os.Getenv("LEADS_DEFAULT_TABLE"))
	c.Leads.PageSize, parseErrs = optionalInt(parseErrs, "LEADS_PAGE_SIZE")
	c.Leads.MaxRows, parseErrs = optionalInt(parseErrs, "LEADS_MAX_ROWS")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults for optional ones.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.Timezone == "" {
		c.App.Timezone = "America/Sao_Paulo"
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE is not a known zone: %q", c.App.Timezone))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.OperatorPassword == "" {
		errs = append(errs, errors.New("AUTH_OPERATOR_PASSWORD is required"))
	}
	if c.Auth.ViewerPassword != "" && c.Auth.ViewerPassword == c.Auth.OperatorPassword {
		errs = append(errs, errors.New("AUTH_VIEWER_PASSWORD must differ from AUTH_OPERATOR_PASSWORD"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.SessionTTL <= 0 {
		// Operators stay logged in for a year.
		c.Auth.SessionTTL = 365 * 24 * time.Hour
	}

	if c.Voice.BaseURL == "" {
		c.Voice.BaseURL = defaultVoiceBaseURL
	}
	if c.Voice.Token == "" {
		errs = append(errs, errors.New("VOICE_TOKEN is required"))
	}
	if c.Voice.AudioID == "" {
		errs = append(errs, errors.New("VOICE_AUDIO_ID is required"))
	}

	if c.SMS.URL == "" {
		c.SMS.URL = defaultSMSURL
	}
	if c.SMS.AuthKey == "" {
		errs = append(errs, errors.New("SMS_AUTH_KEY is required"))
	}

	if c.VIP.BaseURL != "" && c.VIP.Token == "" {
		errs = append(errs, errors.New("VIP_TOKEN is required when VIP_BASE_URL is set"))
	}

	c.Campaign.applyDefaults()
	if c.Campaign.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("CAMPAIGN_MAX_CONCURRENCY must be >= 1, got %d", c.Campaign.MaxConcurrency))
	}
	if c.Campaign.GlobalConcurrency < 0 {
		errs = append(errs, fmt.Errorf("CAMPAIGN_GLOBAL_CONCURRENCY must be >= 0, got %d", c.Campaign.GlobalConcurrency))
	}
	if strings.Trim(c.Campaign.CountryCode, "0123456789") != "" {
		errs = append(errs, fmt.Errorf("CAMPAIGN_COUNTRY_CODE must be digits only, got %q", c.Campaign.CountryCode))
	}

	if len(c.Leads.Tables) == 0 {
		c.Leads.Tables = []string{"CALL_LEADS_D1", "CALL_LEADS_D2"}
	}
	if c.Leads.DefaultTable == "" {
		c.Leads.DefaultTable = c.Leads.Tables[len(c.Leads.Tables)-1]
	}
	if !contains(c.Leads.Tables, c.Leads.DefaultTable) {
		errs = append(errs, fmt.Errorf("LEADS_DEFAULT_TABLE %q is not in LEADS_TABLES", c.Leads.DefaultTable))
	}
	if c.Leads.PageSize <= 0 {
		c.Leads.PageSize = 1000
	}
	if c.Leads.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("LEADS_MAX_ROWS must be >= 0, got %d", c.Leads.MaxRows))
	}

	return joinErrors(errs)
}

func (c *CampaignConfig) applyDefaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = 60 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 120 * time.Second
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 30 * time.Second
	}
	if c.SMSTimeout <= 0 {
		c.SMSTimeout = 30 * time.Second
	}
	if c.VIPTimeout <= 0 {
		c.VIPTimeout = 30 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 30 * time.Second
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 10
	}
	if c.CountryCode == "" {
		c.CountryCode = "55"
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// Location returns the configured calendar zone. Validate must have succeeded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func requiredInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration (e.g. 60s), got %q", key, v))
	}
	return d, errs
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
