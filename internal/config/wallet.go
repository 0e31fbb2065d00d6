package config

import (
	"os"
	"strconv"
	"strings"
)

// WalletConfig carries the tunables of the monetary core. Fee rates and
// destination patterns are business rules, so they are configuration
// rather than code.
type WalletConfig struct {
	GiftFeeRate        float64
	WithdrawalFeeRate  float64
	MinGiftAmount      int64
	MinWithdrawal      int64
	DirectMessagePrice int64
	PlatformAccountID  string
	SubscriptionDays   int
	Currency           string
	TierPrices         map[string]int64
	PayoutProviders    map[string]PayoutProviderConfig
}

// PayoutProviderConfig describes one payout rail. Pattern is an anchored
// regular expression the destination must match.
type PayoutProviderConfig struct {
	Code    string
	Name    string
	Pattern string
	Logo    string
}

func LoadWalletConfig() *WalletConfig {
	return &WalletConfig{
		GiftFeeRate:        getEnvAsFloat("WALLET_GIFT_FEE_RATE", 0.10),
		WithdrawalFeeRate:  getEnvAsFloat("WALLET_WITHDRAWAL_FEE_RATE", 0.05),
		MinGiftAmount:      getEnvAsInt64("WALLET_MIN_GIFT_AMOUNT", 100),
		MinWithdrawal:      getEnvAsInt64("WALLET_MIN_WITHDRAWAL", 500),
		DirectMessagePrice: getEnvAsInt64("WALLET_DM_UNLOCK_PRICE", 10000),
		PlatformAccountID:  getEnv("WALLET_PLATFORM_ACCOUNT", "platform"),
		SubscriptionDays:   getEnvAsInt("WALLET_SUBSCRIPTION_DAYS", 30),
		Currency:           getEnv("WALLET_CURRENCY", "USD"),
		TierPrices: map[string]int64{
			"silver": getEnvAsInt64("WALLET_TIER_PRICE_SILVER", 49900),
			"gold":   getEnvAsInt64("WALLET_TIER_PRICE_GOLD", 99900),
		},
		PayoutProviders: loadPayoutProviders(),
	}
}

// loadPayoutProviders reads the rail catalog from WALLET_PAYOUT_PROVIDERS
// ("code:name:pattern;code:name:pattern"). The defaults cover the two
// mobile-money rails and bank transfer.
func loadPayoutProviders() map[string]PayoutProviderConfig {
	providers := map[string]PayoutProviderConfig{
		"mpesa": {
			Code:    "mpesa",
			Name:    "M-Pesa",
			Pattern: `^\+?2547[0-9]{8}$`,
			Logo:    "mpesa.svg",
		},
		"airtel_money": {
			Code:    "airtel_money",
			Name:    "Airtel Money",
			Pattern: `^\+?2557[0-9]{8}$`,
			Logo:    "airtel.svg",
		},
		"bank_transfer": {
			Code:    "bank_transfer",
			Name:    "Bank Transfer",
			Pattern: `^[0-9]{10,20}$`,
			Logo:    "bank.svg",
		},
	}

	raw := os.Getenv("WALLET_PAYOUT_PROVIDERS")
	if raw == "" {
		return providers
	}

	parsed := map[string]PayoutProviderConfig{}
	for _, entry := range strings.Split(raw, ";") {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			continue
		}
		parsed[parts[0]] = PayoutProviderConfig{
			Code:    parts[0],
			Name:    parts[1],
			Pattern: parts[2],
		}
	}
	if len(parsed) == 0 {
		return providers
	}
	return parsed
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
