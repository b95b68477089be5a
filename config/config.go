package config

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"schedulebot/models"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort       string `mapstructure:"APP_PORT"`
	Env           string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	BusinessName  string `mapstructure:"BUSINESS_NAME"`
	CalculatorURL string `mapstructure:"BUDGET_CALCULATOR_URL"`

	// Scheduling.
	Timezone           string                        `mapstructure:"TIMEZONE"`
	BusinessHours      map[string][]models.TimeRange `mapstructure:"BUSINESS_HOURS"`
	MorningCutoff      models.ClockTime              `mapstructure:"MORNING_CUTOFF"`
	SlotDuration       time.Duration                 `mapstructure:"SLOT_DURATION"`
	SlotGrid           time.Duration                 `mapstructure:"SLOT_GRID"`
	SuggestionTTL      time.Duration                 `mapstructure:"SUGGESTION_TTL"`
	MaxLookaheadDays   int                           `mapstructure:"MAX_LOOKAHEAD_DAYS"`
	BookingHorizonDays int                           `mapstructure:"BOOKING_HORIZON_DAYS"`
	MenuResetWords     []string                      `mapstructure:"MENU_RESET_WORDS"`

	// Backends.
	SessionBackend  string        `mapstructure:"SESSION_BACKEND"`
	SessionTTL      time.Duration `mapstructure:"SESSION_TTL"`
	RotationBackend string        `mapstructure:"ROTATION_BACKEND"`
	CalendarBackend string        `mapstructure:"CALENDAR_BACKEND"`
	CalendarTimeout time.Duration `mapstructure:"CALENDAR_TIMEOUT"`

	// Google Calendar service account.
	GoogleCalendarID          string `mapstructure:"GOOGLE_CALENDAR_ID"`
	GoogleProjectID           string `mapstructure:"GOOGLE_PROJECT_ID"`
	GooglePrivateKeyID        string `mapstructure:"GOOGLE_PRIVATE_KEY_ID"`
	GooglePrivateKey          string `mapstructure:"GOOGLE_PRIVATE_KEY"`
	GoogleServiceAccountEmail string `mapstructure:"GOOGLE_SERVICE_ACCOUNT_EMAIL"`
	GoogleClientID            string `mapstructure:"GOOGLE_CLIENT_ID"`

	// Redis configuration.
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisSessionDB  int    `mapstructure:"REDIS_SESSION_DB"`
	RedisRotationDB int    `mapstructure:"REDIS_ROTATION_DB"`
	RedisQueueDB    int    `mapstructure:"REDIS_QUEUE_DB"`

	// MongoDB.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Twilio.
	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`
	WebhookPublicURL string `mapstructure:"WEBHOOK_PUBLIC_URL"`

	RemindersEnabled  bool          `mapstructure:"REMINDERS_ENABLED"`
	ReminderLead      time.Duration `mapstructure:"REMINDER_LEAD"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	MaxMessagesPerMin int           `mapstructure:"MAX_MESSAGES_PER_MIN"`
}

var AppConfig Config

// DefaultBusinessHours is the opening schedule used when none is configured.
var DefaultBusinessHours = map[string]any{
	"monday":    []string{"08:00-12:00"},
	"tuesday":   []string{"14:00-17:00"},
	"wednesday": []string{"08:00-12:00", "14:00-17:00"},
	"thursday":  []string{"08:00-12:00"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BUSINESS_NAME", "Reformas Ebenezer")
	v.SetDefault("BUDGET_CALCULATOR_URL", "https://example.com/calculator")

	v.SetDefault("TIMEZONE", "Europe/Madrid")
	v.SetDefault("BUSINESS_HOURS", DefaultBusinessHours)
	v.SetDefault("MORNING_CUTOFF", "12:00")
	v.SetDefault("SLOT_DURATION", "60m")
	v.SetDefault("SLOT_GRID", "30m")
	v.SetDefault("SUGGESTION_TTL", "10m")
	v.SetDefault("MAX_LOOKAHEAD_DAYS", 14)
	v.SetDefault("BOOKING_HORIZON_DAYS", 90)
	v.SetDefault("MENU_RESET_WORDS", []string{"0", "menu", "menú", "principal", "menu principal", "menú principal"})

	v.SetDefault("SESSION_BACKEND", "memory")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("ROTATION_BACKEND", "memory")
	v.SetDefault("CALENDAR_BACKEND", "memory")
	v.SetDefault("CALENDAR_TIMEOUT", "10s")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_SESSION_DB", 0)
	v.SetDefault("REDIS_ROTATION_DB", 1)
	v.SetDefault("REDIS_QUEUE_DB", 2)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_NAME", "schedulebot")

	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_FROM_NUMBER", "")
	v.SetDefault("WEBHOOK_PUBLIC_URL", "")
	v.SetDefault("REMINDERS_ENABLED", false)
	v.SetDefault("REMINDER_LEAD", "24h")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("MAX_MESSAGES_PER_MIN", 30)
}

// clockHook decodes "HH:MM" and "HH:MM-HH:MM" strings into the scheduling types.
func clockHook() mapstructure.DecodeHookFuncType {
	clockType := reflect.TypeOf(models.ClockTime{})
	rangeType := reflect.TypeOf(models.TimeRange{})
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		switch t {
		case clockType:
			return models.ParseClockTime(data.(string))
		case rangeType:
			return models.ParseTimeRange(data.(string))
		}
		return data, nil
	}
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		clockHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// Load reads configuration from an optional config.yaml, a .env file and the
// environment, in increasing order of precedence.
func Load(v *viper.Viper) (Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		log.Println("No config file found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadConfig populates AppConfig or exits the process.
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg, err := Load(viper.GetViper())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	AppConfig = cfg
}

// Validate rejects settings the scheduler cannot run with.
func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.WeeklyHours(); err != nil {
		return err
	}
	if c.SlotDuration <= 0 {
		return fmt.Errorf("SLOT_DURATION must be positive, got %s", c.SlotDuration)
	}
	if c.SlotGrid < time.Minute || c.SlotGrid%time.Minute != 0 || time.Hour%c.SlotGrid != 0 {
		return fmt.Errorf("SLOT_GRID must be whole minutes dividing one hour, got %s", c.SlotGrid)
	}
	if c.SlotDuration%c.SlotGrid != 0 {
		return fmt.Errorf("SLOT_DURATION must be a multiple of SLOT_GRID (%s), got %s", c.SlotGrid, c.SlotDuration)
	}
	if c.MaxLookaheadDays < 1 {
		return fmt.Errorf("MAX_LOOKAHEAD_DAYS must be at least 1, got %d", c.MaxLookaheadDays)
	}
	if c.BookingHorizonDays < 0 {
		return fmt.Errorf("BOOKING_HORIZON_DAYS must not be negative, got %d", c.BookingHorizonDays)
	}
	switch c.SessionBackend {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}
	switch c.RotationBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown ROTATION_BACKEND %q", c.RotationBackend)
	}
	switch c.CalendarBackend {
	case "memory":
	case "google":
		if c.GooglePrivateKey == "" || c.GoogleServiceAccountEmail == "" {
			return errors.New("google calendar backend needs GOOGLE_PRIVATE_KEY and GOOGLE_SERVICE_ACCOUNT_EMAIL")
		}
	default:
		return fmt.Errorf("unknown CALENDAR_BACKEND %q", c.CalendarBackend)
	}
	if c.SessionBackend == "mongo" && c.DatabaseURL == "" {
		return errors.New("SESSION_BACKEND=mongo needs DATABASE_URL")
	}
	return nil
}

// Location resolves the business time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// WeeklyHours keys BusinessHours by weekday. Days not listed are closed.
func (c Config) WeeklyHours() (map[time.Weekday][]models.TimeRange, error) {
	out := make(map[time.Weekday][]models.TimeRange, len(c.BusinessHours))
	for name, ranges := range c.BusinessHours {
		day, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("BUSINESS_HOURS: unknown weekday %q", name)
		}
		out[day] = append(out[day], ranges...)
	}
	return out, nil
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
