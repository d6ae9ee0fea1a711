package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"stealthcompany.com/medicapi/internal/analytics"
)

// Config is the process configuration, loaded once and injected into components
type Config struct {
	Env      string `mapstructure:"ENV"`
	APIPort  string `mapstructure:"API_PORT"`
	LogLevel string `mapstructure:"API_LOG_LEVEL"`

	ElasticsearchURL   string `mapstructure:"ELASTICSEARCH_URL"`
	ElasticsearchIndex string `mapstructure:"ELASTICSEARCH_INDEX"`

	StoreURL      string        `mapstructure:"STORE_URL"`
	StoreDB       string        `mapstructure:"STORE_DB"`
	StoreDDoc     string        `mapstructure:"STORE_DDOC"`
	StoreUsername string        `mapstructure:"STORE_USERNAME"`
	StorePassword string        `mapstructure:"STORE_PASSWORD"`
	StoreTimeout  time.Duration `mapstructure:"STORE_TIMEOUT"`

	CouchbaseURL           string `mapstructure:"COUCHBASE_URL"`
	CouchbaseUsername      string `mapstructure:"COUCHBASE_USERNAME"`
	CouchbasePassword      string `mapstructure:"COUCHBASE_PASSWORD"`
	CouchbaseBucket        string `mapstructure:"COUCHBASE_BUCKET"`
	AuditCollection        string `mapstructure:"AUDIT_COLLECTION"`
	UserSettingsCollection string `mapstructure:"USER_SETTINGS_COLLECTION"`

	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`

	SearchIndex         string `mapstructure:"SEARCH_INDEX"`
	SearchBatchSize     int    `mapstructure:"SEARCH_BATCH_SIZE"`
	FormRegistration    string `mapstructure:"FORM_REGISTRATION"`
	FormRegistrationLMP string `mapstructure:"FORM_REGISTRATION_LMP"`
	FormVisit           string `mapstructure:"FORM_VISIT"`
	FormDelivery        string `mapstructure:"FORM_DELIVERY"`
	UpcomingWindowDays  int    `mapstructure:"UPCOMING_WINDOW_DAYS"`
	MissedWindowDays    int    `mapstructure:"MISSED_WINDOW_DAYS"`
	DueDatesWindowWeeks int    `mapstructure:"DUE_DATES_WINDOW_WEEKS"`
	BirthsLookbackWeeks int    `mapstructure:"BIRTHS_LOOKBACK_WEEKS"`

	DistrictAdminsAccessUnallocated bool `mapstructure:"DISTRICT_ADMINS_ACCESS_UNALLOCATED"`

	EnableBusinessMetrics bool `mapstructure:"ENABLE_BUSINESS_METRICS"`
	EnableSystemMetrics   bool `mapstructure:"ENABLE_SYSTEM_METRICS"`

	PermissionsFile string `mapstructure:"PERMISSIONS_FILE"`

	// Permissions maps a capability to the roles holding it
	Permissions map[string][]string `mapstructure:"-"`
}

var defaults = map[string]interface{}{
	"ENV":                                "development",
	"API_PORT":                           "5988",
	"API_LOG_LEVEL":                      "info",
	"ELASTICSEARCH_URL":                  "",
	"ELASTICSEARCH_INDEX":                "logs",
	"STORE_URL":                          "http://localhost:5984",
	"STORE_DB":                           "medic",
	"STORE_DDOC":                         "medic",
	"STORE_USERNAME":                     "",
	"STORE_PASSWORD":                     "",
	"STORE_TIMEOUT":                      "30s",
	"COUCHBASE_URL":                      "",
	"COUCHBASE_USERNAME":                 "",
	"COUCHBASE_PASSWORD":                 "",
	"COUCHBASE_BUCKET":                   "medicapi",
	"AUDIT_COLLECTION":                   "audit",
	"USER_SETTINGS_COLLECTION":           "user_settings",
	"SESSION_SECRET":                     "",
	"SESSION_TTL":                        "24h",
	"SEARCH_INDEX":                       "data_records",
	"SEARCH_BATCH_SIZE":                  analytics.DefaultBatchSize,
	"FORM_REGISTRATION":                  "R",
	"FORM_REGISTRATION_LMP":              "P",
	"FORM_VISIT":                         "V",
	"FORM_DELIVERY":                      "D",
	"UPCOMING_WINDOW_DAYS":               5,
	"MISSED_WINDOW_DAYS":                 14,
	"DUE_DATES_WINDOW_WEEKS":             2,
	"BIRTHS_LOOKBACK_WEEKS":              52,
	"DISTRICT_ADMINS_ACCESS_UNALLOCATED": false,
	"ENABLE_BUSINESS_METRICS":            false,
	"ENABLE_SYSTEM_METRICS":              false,
	"PERMISSIONS_FILE":                   "",
}

// LoadDotEnv loads .env from the parent directory, then the current one
func LoadDotEnv() {
	if err := godotenv.Load("../.env"); err != nil {
		log.Info().Msg("Not found .env file in parent directory, trying current directory")
		if err := godotenv.Load(".env"); err != nil {
			log.Info().Msg("Not found .env file in current directory, assuming environment variables are set")
		}
	}
}

// Load reads the configuration from the environment and the optional permissions file
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Permissions = DefaultPermissions()
	if cfg.PermissionsFile != "" {
		permissions, err := loadPermissions(cfg.PermissionsFile)
		if err != nil {
			return nil, err
		}
		cfg.Permissions = permissions
	}

	return cfg, nil
}

func loadPermissions(file string) (map[string][]string, error) {
	v := viper.New()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read permissions file %s: %w", file, err)
	}

	permissions := map[string][]string{}
	if err := v.UnmarshalKey("permissions", &permissions); err != nil {
		return nil, fmt.Errorf("parse permissions file %s: %w", file, err)
	}
	if len(permissions) == 0 {
		return nil, fmt.Errorf("permissions file %s defines no permissions", file)
	}
	return permissions, nil
}

// DefaultPermissions is the capability map used when no permissions file is configured
func DefaultPermissions() map[string][]string {
	return map[string][]string{
		"can_access_directly":               {"national_admin"},
		"can_view_analytics":                {"national_admin", "district_admin", "analytics"},
		"can_view_data_records":             {"national_admin", "district_admin", "analytics", "data_entry"},
		"can_view_unallocated_data_records": {"national_admin", "district_admin"},
		"can_create_records":                {"national_admin", "district_admin", "data_entry", "gateway"},
		"can_export_messages":               {"national_admin", "district_admin", "analytics"},
		"can_export_audit":                  {"national_admin"},
		"can_export_feedback":               {"national_admin"},
		"can_export_contacts":               {"national_admin", "district_admin"},
		"can_export_server_logs":            {"national_admin"},
	}
}

// IsDev returns true when running in development mode
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate rejects configurations the gateway cannot run safely with
func (c *Config) Validate() error {
	if c.SearchBatchSize < 1 {
		return fmt.Errorf("SEARCH_BATCH_SIZE must be at least 1, got %d", c.SearchBatchSize)
	}
	if !strings.HasPrefix(c.StoreURL, "http://") && !strings.HasPrefix(c.StoreURL, "https://") {
		return fmt.Errorf("STORE_URL must be an http(s) url, got %q", c.StoreURL)
	}
	if c.StoreDB == "" || c.StoreDDoc == "" {
		return fmt.Errorf("STORE_DB and STORE_DDOC are required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.SessionSecret == "" && !c.IsDev() {
		return fmt.Errorf("SESSION_SECRET is required outside development (ENV=%q)", c.Env)
	}
	for _, days := range []int{c.UpcomingWindowDays, c.MissedWindowDays, c.DueDatesWindowWeeks, c.BirthsLookbackWeeks} {
		if days < 1 {
			return fmt.Errorf("report windows must be positive")
		}
	}
	return nil
}

// AnalyticsSettings returns the engine settings derived from the configuration
func (c *Config) AnalyticsSettings() analytics.Settings {
	return analytics.Settings{
		Index:     c.SearchIndex,
		BatchSize: c.SearchBatchSize,
		Forms: analytics.Forms{
			Registration:    c.FormRegistration,
			RegistrationLMP: c.FormRegistrationLMP,
			Visit:           c.FormVisit,
			Delivery:        c.FormDelivery,
		},
		UpcomingDays:        c.UpcomingWindowDays,
		MissedDays:          c.MissedWindowDays,
		DueDatesWeeks:       c.DueDatesWindowWeeks,
		BirthsLookbackWeeks: c.BirthsLookbackWeeks,
	}
}
