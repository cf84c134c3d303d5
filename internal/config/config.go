// Package config loads application configuration from environment variables.
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

// Refund policies applied when a confirmed booking is cancelled.
const (
	RefundManual = "manual" // record the refund amount for the operator
	RefundAuto   = "auto"   // issue the refund through the payment gateway
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations accept Go duration syntax ("10s",
// "10m").  An empty DBHost selects the in-memory ledger, an empty
// StripeSecretKey the offline payment gateway and an empty CalendarID the
// weekly slot table.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // zap level override

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	RabbitURL string // broker URL for booking notifications; empty disables publishing

	StripeSecretKey string
	Currency        string // ISO currency, amounts are in its smallest unit
	ProductName     string // line item label shown at checkout
	GatewayTimeout  time.Duration

	CalendarID            string
	GoogleCredentialsFile string
	CalendarTimeout       time.Duration
	Weekly                WeeklySlots
	VenueTZ               *time.Location

	SecurityToken     string // shared secret every dispatch request must carry
	JWTSecret         string
	AccessTTLMin      int
	AdminEmail        string
	AdminPasswordHash string // bcrypt hash; derived from AdminPassword when empty
	AdminPassword     string
	BcryptCost        int
	AdminAuth         bool // require an ADMIN bearer token for admin actions
	AdminNotifyEmail  string

	RefundPolicy     string
	StrictPricing    bool
	MonthCacheTTL    time.Duration
	FinalizeAttempts int
	FinalizeDelay    time.Duration
	PendingTTL       time.Duration // abandoned pending authorizations older than this are purged
	MailLogPath      string
}

// WeeklySlots is the fallback schedule used without a calendar: the same
// start times on every open weekday, minus explicitly closed dates.
type WeeklySlots struct {
	Times       []string
	ClosedDays  map[time.Weekday]bool
	ClosedDates map[string]bool
}

// Load reads a .env file when present, then the environment.  Missing
// required keys and malformed values are collected and returned together.
func Load() (Config, error) {
	_ = godotenv.Load()

	var l loader
	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),
		Port:     envStr("APP_PORT", "8080"),
		LogLevel: os.Getenv("LOG_LEVEL"),

		DBUser: envStr("DB_USER", "root"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: os.Getenv("DB_HOST"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: envStr("DB_NAME", "sake_tasting"),

		RabbitURL: firstNonEmpty(os.Getenv("RABBITMQ_URL"), os.Getenv("AMQP_URL")),

		StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
		Currency:        strings.ToLower(envStr("STRIPE_CURRENCY", "jpy")),
		ProductName:     envStr("PRODUCT_NAME", "Sake Tasting Experience"),
		GatewayTimeout:  l.dur("GATEWAY_TIMEOUT", 10*time.Second),

		CalendarID:            os.Getenv("CALENDAR_ID"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		CalendarTimeout:       l.dur("CALENDAR_TIMEOUT", 10*time.Second),

		SecurityToken:     os.Getenv("APP_SECURITY_TOKEN"),
		JWTSecret:         l.must("JWT_SECRET"),
		AccessTTLMin:      l.num("ACCESS_TOKEN_TTL_MIN", 720),
		AdminEmail:        os.Getenv("ADMIN_EMAIL"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		BcryptCost:        l.num("BCRYPT_COST", 10),
		AdminAuth:         envBool("ADMIN_AUTH", true),
		AdminNotifyEmail:  os.Getenv("ADMIN_NOTIFY_EMAIL"),

		RefundPolicy:     strings.ToLower(envStr("REFUND_POLICY", RefundManual)),
		StrictPricing:    envBool("STRICT_PRICING", false),
		MonthCacheTTL:    l.dur("MONTH_CACHE_TTL", 10*time.Minute),
		FinalizeAttempts: l.num("FINALIZE_ATTEMPTS", 5),
		FinalizeDelay:    l.dur("FINALIZE_DELAY", time.Second),
		PendingTTL:       l.dur("PENDING_TTL", 48*time.Hour),
		MailLogPath:      envStr("MAIL_LOG_PATH", "logs/mail.log"),
	}

	tz := envStr("VENUE_TZ", "Asia/Tokyo")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		l.fail("invalid VENUE_TZ %q: %v", tz, err)
		loc = time.UTC
	}
	cfg.VenueTZ = loc

	weekly, err := ParseWeekly(envStr("SLOT_TIMES", "11:00,14:00,17:00"),
		os.Getenv("CLOSED_WEEKDAYS"), os.Getenv("CLOSED_DATES"))
	if err != nil {
		l.fail("%v", err)
	}
	cfg.Weekly = weekly

	if cfg.RefundPolicy != RefundManual && cfg.RefundPolicy != RefundAuto {
		l.fail("REFUND_POLICY must be %q or %q, got %q", RefundManual, RefundAuto, cfg.RefundPolicy)
	}
	if cfg.FinalizeAttempts < 1 {
		cfg.FinalizeAttempts = 1
	}
	return cfg, errors.Join(l.errs...)
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// ParseWeekly builds a WeeklySlots from comma separated lists: start times
// ("11:00,14:00"), closed weekdays ("mon,tue") and closed dates
// ("2024-12-31,2025-01-01").
func ParseWeekly(times, closedDays, closedDates string) (WeeklySlots, error) {
	w := WeeklySlots{ClosedDays: map[time.Weekday]bool{}, ClosedDates: map[string]bool{}}
	for _, t := range splitList(times) {
		if _, err := time.Parse("15:04", t); err != nil {
			return w, fmt.Errorf("invalid SLOT_TIMES entry %q", t)
		}
		w.Times = append(w.Times, t)
	}
	for _, d := range splitList(closedDays) {
		wd, ok := weekdays[strings.ToLower(d)]
		if !ok {
			return w, fmt.Errorf("invalid CLOSED_WEEKDAYS entry %q", d)
		}
		w.ClosedDays[wd] = true
	}
	for _, d := range splitList(closedDates) {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return w, fmt.Errorf("invalid CLOSED_DATES entry %q", d)
		}
		w.ClosedDates[d] = true
	}
	return w, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// loader collects configuration errors instead of exiting on the first one.
type loader struct{ errs []error }

func (l *loader) fail(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

// must retrieves a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.fail("missing required env var: %s", key)
	}
	return v
}

func (l *loader) num(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.fail("invalid int for %s: %q", key, s)
		return def
	}
	return n
}

func (l *loader) dur(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		l.fail("invalid duration for %s: %q", key, s)
		return def
	}
	return d
}
