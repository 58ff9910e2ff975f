package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Booking policy. Lead times are floors between "now" and the slot
	// start; the public self-service channel uses a wider floor than
	// staff-assisted booking.
	Timezone               string `mapstructure:"TIMEZONE"`
	BookingLeadHoursPublic int    `mapstructure:"BOOKING_LEAD_HOURS_PUBLIC"`
	BookingLeadHoursStaff  int    `mapstructure:"BOOKING_LEAD_HOURS_STAFF"`
	CancelLeadHours        int    `mapstructure:"CANCEL_LEAD_HOURS"`

	// Microsoft Graph (Teams meeting provisioning).
	TeamsTenantID           string `mapstructure:"TEAMS_TENANT_ID"`
	TeamsClientID           string `mapstructure:"TEAMS_CLIENT_ID"`
	TeamsClientSecret       string `mapstructure:"TEAMS_CLIENT_SECRET"`
	TeamsOrganizerID        string `mapstructure:"TEAMS_ORGANIZER_ID"`
	TeamsMaxRetries         int    `mapstructure:"TEAMS_MAX_RETRIES"`
	TeamsRetryDelaySeconds  int    `mapstructure:"TEAMS_RETRY_DELAY_SECONDS"`
	TeamsInsecureSkipVerify bool   `mapstructure:"TEAMS_INSECURE_SKIP_VERIFY"`

	// Outbound email.
	SendGridAPIKey   string `mapstructure:"SENDGRID_API_KEY"`
	EmailFromAddress string `mapstructure:"EMAIL_FROM_ADDRESS"`
	EmailFromName    string `mapstructure:"EMAIL_FROM_NAME"`

	// Staff authentication.
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("TIMEZONE", "America/Bogota")
	v.SetDefault("BOOKING_LEAD_HOURS_PUBLIC", 2)
	v.SetDefault("BOOKING_LEAD_HOURS_STAFF", 1)
	v.SetDefault("CANCEL_LEAD_HOURS", 2)
	v.SetDefault("TEAMS_MAX_RETRIES", 3)
	v.SetDefault("TEAMS_RETRY_DELAY_SECONDS", 2)
	v.SetDefault("EMAIL_FROM_NAME", "Agendamiento de Citas")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("TIMEZONE")
	v.BindEnv("BOOKING_LEAD_HOURS_PUBLIC")
	v.BindEnv("BOOKING_LEAD_HOURS_STAFF")
	v.BindEnv("CANCEL_LEAD_HOURS")
	v.BindEnv("TEAMS_TENANT_ID")
	v.BindEnv("TEAMS_CLIENT_ID")
	v.BindEnv("TEAMS_CLIENT_SECRET")
	v.BindEnv("TEAMS_ORGANIZER_ID")
	v.BindEnv("TEAMS_MAX_RETRIES")
	v.BindEnv("TEAMS_RETRY_DELAY_SECONDS")
	v.BindEnv("TEAMS_INSECURE_SKIP_VERIFY")
	v.BindEnv("SENDGRID_API_KEY")
	v.BindEnv("EMAIL_FROM_ADDRESS")
	v.BindEnv("EMAIL_FROM_NAME")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_SIGNING_KEY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active — all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves the configured IANA timezone. Slot times, lead-time
// checks and meeting payloads are all interpreted in this zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// PublicLeadTime returns the minimum gap between booking time and slot
// start for the public channel.
func (c *Config) PublicLeadTime() time.Duration {
	return time.Duration(c.BookingLeadHoursPublic) * time.Hour
}

// StaffLeadTime returns the minimum booking gap for staff-assisted booking.
func (c *Config) StaffLeadTime() time.Duration {
	return time.Duration(c.BookingLeadHoursStaff) * time.Hour
}

// CancelLeadTime returns the minimum gap between cancellation time and the
// slot start for a cancellation to be accepted.
func (c *Config) CancelLeadTime() time.Duration {
	return time.Duration(c.CancelLeadHours) * time.Hour
}

// TeamsRetryDelay returns the pause between meeting provisioning attempts.
func (c *Config) TeamsRetryDelay() time.Duration {
	return time.Duration(c.TeamsRetryDelaySeconds) * time.Second
}

// MeetingsEnabled reports whether Microsoft Graph credentials are present.
// Without them appointments are still booked, just without an online meeting.
func (c *Config) MeetingsEnabled() bool {
	return c.TeamsTenantID != "" && c.TeamsClientID != "" && c.TeamsClientSecret != "" && c.TeamsOrganizerID != ""
}

// Validate checks that the configuration is safe to run. In production,
// staff endpoints must be protected by a real JWT verifier: a JWKS endpoint
// or an explicit signing key. AUTH_ISSUER only constrains claims and cannot
// verify signatures by itself.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthJWKSURL == "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_JWKS_URL or AUTH_SIGNING_KEY must be set in production; " +
			"refusing to start with staff endpoints unauthenticated")
	}
	if c.TeamsMaxRetries < 0 {
		return fmt.Errorf("TEAMS_MAX_RETRIES must not be negative, got %d", c.TeamsMaxRetries)
	}
	if c.TeamsRetryDelaySeconds < 0 {
		return fmt.Errorf("TEAMS_RETRY_DELAY_SECONDS must not be negative, got %d", c.TeamsRetryDelaySeconds)
	}
	if c.BookingLeadHoursPublic < c.BookingLeadHoursStaff {
		return fmt.Errorf("BOOKING_LEAD_HOURS_PUBLIC (%d) must not be below BOOKING_LEAD_HOURS_STAFF (%d)",
			c.BookingLeadHoursPublic, c.BookingLeadHoursStaff)
	}
	if c.SendGridAPIKey != "" && c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when SENDGRID_API_KEY is set")
	}
	return nil
}
