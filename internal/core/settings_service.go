package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Setting keys recognized by the settings store.
const (
	SettingReceiptRequiredThreshold = "receipt_required_threshold"
	SettingDefaultCurrency          = "default_currency"
	SettingExchangeRateMultiplier   = "exchange_rate_multiplier"
)

// Settings are the small business configuration values read by the
// document services. Missing keys fall back to defaults.
type Settings struct {
	// ReceiptRequiredThreshold is the company-currency amount at and above
	// which an expense requires a receipt reference before submission.
	ReceiptRequiredThreshold decimal.Decimal
	// DefaultCurrency is the company currency code.
	DefaultCurrency string
	// ExchangeRateMultiplier is the fixed multiplier applied to foreign
	// currency expense amounts. Real multi-currency conversion is out of
	// scope; this is a single configurable constant.
	ExchangeRateMultiplier decimal.Decimal
}

func defaultSettings() Settings {
	return Settings{
		ReceiptRequiredThreshold: decimal.NewFromInt(100),
		DefaultCurrency:          "USD",
		ExchangeRateMultiplier:   decimal.NewFromInt(1),
	}
}

// SettingsService provides typed access to the settings store.
type SettingsService interface {
	Get(ctx context.Context) (*Settings, error)
	// Set updates one setting key. Admin only.
	Set(ctx context.Context, actor Actor, key, value string) error
}

type settingsService struct {
	pool *pgxpool.Pool
}

// NewSettingsService constructs a SettingsService backed by PostgreSQL.
func NewSettingsService(pool *pgxpool.Pool) SettingsService {
	return &settingsService{pool: pool}
}

func (s *settingsService) Get(ctx context.Context) (*Settings, error) {
	settings, err := loadSettings(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *settingsService) Set(ctx context.Context, actor Actor, key, value string) error {
	if actor.Role != RoleAdmin {
		return &AccessDeniedError{ActorID: actor.ID, Role: actor.Role, Action: ActionEdit}
	}

	switch key {
	case SettingDefaultCurrency:
		if value == "" {
			return validationf("setting %s must not be empty", key)
		}
	case SettingReceiptRequiredThreshold, SettingExchangeRateMultiplier:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return validationf("setting %s must be a decimal, got %q", key, value)
		}
		if d.IsNegative() {
			return validationf("setting %s must be >= 0, got %s", key, value)
		}
	default:
		return validationf("unknown setting key %q", key)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// loadSettings reads all settings rows through q, which may be a pool or an
// open transaction. Document services call it in-transaction so threshold
// checks see a consistent value.
func loadSettings(ctx context.Context, q pgxRowQuerier) (Settings, error) {
	settings := defaultSettings()

	rows, err := q.Query(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return settings, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, fmt.Errorf("failed to scan setting: %w", err)
		}
		switch key {
		case SettingReceiptRequiredThreshold:
			if d, err := decimal.NewFromString(value); err == nil {
				settings.ReceiptRequiredThreshold = d
			}
		case SettingDefaultCurrency:
			settings.DefaultCurrency = value
		case SettingExchangeRateMultiplier:
			if d, err := decimal.NewFromString(value); err == nil {
				settings.ExchangeRateMultiplier = d
			}
		}
	}
	return settings, rows.Err()
}
