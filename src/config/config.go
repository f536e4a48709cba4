package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

const TIME_PARSE_FORMAT = "2006-01-02 15:04:05 -07:00"

var API_ENV = os.Getenv("API_ENV")

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// Commission rates. The defaults mirror the marketplace's standard contract
// (platform 10, host 85, agent 5); deployments override them per environment
// or through the settings table.
func PlatformCommissionPct() float64 { return envFloat("PLATFORM_COMMISSION_PCT", 10) }
func HostCommissionPct() float64     { return envFloat("HOST_COMMISSION_PCT", 85) }
func AgentCommissionPct() float64    { return envFloat("AGENT_COMMISSION_PCT", 5) }

// RateSumTolerancePct is how far the three percentages may drift from 100
// before the configuration is rejected.
func RateSumTolerancePct() float64 { return envFloat("RATE_SUM_TOLERANCE_PCT", 0.01) }

// MinimumPayout is the smallest batch the Payout Batcher will create, in
// major units of the payout currency.
func MinimumPayout() int { return envInt("MINIMUM_PAYOUT", 100) }

// Cancellation policy windows, in hours before check-in. Cancelling inside
// the window forfeits the refundable fraction for that policy.
func PolicyFullWindow() time.Duration {
	return time.Duration(envInt("POLICY_FULL_WINDOW_HOURS", 0)) * time.Hour
}
func PolicyFlexibleWindow() time.Duration {
	return time.Duration(envInt("POLICY_FLEXIBLE_WINDOW_HOURS", 6)) * time.Hour
}
func PolicyStrictWindow() time.Duration {
	return time.Duration(envInt("POLICY_STRICT_WINDOW_HOURS", 24)) * time.Hour
}

// Refundable percentage once the cancellation is inside the policy window.
// Outside the window every policy refunds in full.
func PolicyFullRefundPct() float64     { return envFloat("POLICY_FULL_REFUND_PCT", 100) }
func PolicyFlexibleRefundPct() float64 { return envFloat("POLICY_FLEXIBLE_REFUND_PCT", 100) }
func PolicyStrictRefundPct() float64   { return envFloat("POLICY_STRICT_REFUND_PCT", 0) }

// NonRefundableFeePct is the slice of the booking total kept on any refund
// (processing costs). Zero by default.
func NonRefundableFeePct() float64 { return envFloat("NON_REFUNDABLE_FEE_PCT", 0) }

// GatewayTimeout bounds every charge/refund/transfer call.
func GatewayTimeout() time.Duration {
	return time.Duration(envInt("GATEWAY_TIMEOUT_SECONDS", 15)) * time.Second
}

// ReconcileAfter is how long a transaction may sit PENDING/PROCESSING before
// the reconciliation job polls the gateway for its real status.
func ReconcileAfter() time.Duration {
	return time.Duration(envInt("RECONCILE_AFTER_MINUTES", 30)) * time.Minute
}

// Scheduler intervals for the payout batch and reconciliation jobs.
func PayoutBatchInterval() time.Duration {
	return time.Duration(envInt("PAYOUT_BATCH_INTERVAL_MINUTES", 60)) * time.Minute
}
func ReconcileInterval() time.Duration {
	return time.Duration(envInt("RECONCILE_INTERVAL_MINUTES", 15)) * time.Minute
}
