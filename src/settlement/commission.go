package settlement

import (
	"fmt"
	"log"
	"rms/src/config"
	"rms/src/db"
	"rms/src/models"
	"rms/src/types"

	"github.com/shopspring/decimal"
)

type RateConfig struct {
	PlatformPct  decimal.Decimal `json:"platform_pct"`
	HostPct      decimal.Decimal `json:"host_pct"`
	AgentPct     decimal.Decimal `json:"agent_pct"`
	TolerancePct decimal.Decimal `json:"tolerance_pct"`
}

type CommissionSplit struct {
	PlatformFee     types.Money `json:"platform_fee"`
	HostNet         types.Money `json:"host_net"`
	AgentCommission types.Money `json:"agent_commission"`
}

var hundred = decimal.NewFromInt(100)

func (rc RateConfig) validate() error {
	for _, pct := range []decimal.Decimal{rc.PlatformPct, rc.HostPct, rc.AgentPct} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return fmt.Errorf("%w: percentage %s out of bounds", ErrInvalidRateConfig, pct)
		}
	}
	sum := rc.PlatformPct.Add(rc.HostPct).Add(rc.AgentPct)
	if sum.Sub(hundred).Abs().GreaterThan(rc.TolerancePct) {
		return fmt.Errorf("%w: percentages sum to %s", ErrInvalidRateConfig, sum)
	}
	return nil
}

// Split divides a gross payment between platform, host and agent. Platform
// and agent shares are truncated to the currency's minor unit and the host
// takes the remainder, so the three parts always sum exactly to gross.
func Split(gross types.Money, rc RateConfig) (CommissionSplit, error) {
	if err := rc.validate(); err != nil {
		return CommissionSplit{}, err
	}
	if gross.IsNegative() {
		return CommissionSplit{}, fmt.Errorf("%w: gross amount %s is negative", ErrInvalidRateConfig, gross)
	}

	platformFee := types.NewMoney(gross.Amount.Mul(rc.PlatformPct).Div(hundred), gross.Currency).Truncate()
	agentCommission := types.NewMoney(gross.Amount.Mul(rc.AgentPct).Div(hundred), gross.Currency).Truncate()
	hostNet, err := gross.Sub(platformFee)
	if err != nil {
		return CommissionSplit{}, err
	}
	hostNet, err = hostNet.Sub(agentCommission)
	if err != nil {
		return CommissionSplit{}, err
	}
	if hostNet.IsNegative() {
		return CommissionSplit{}, fmt.Errorf("%w: host share is negative", ErrInvalidRateConfig)
	}

	return CommissionSplit{
		PlatformFee:     platformFee,
		HostNet:         hostNet,
		AgentCommission: agentCommission,
	}, nil
}

// DefaultRateConfig builds the rate set from the environment.
func DefaultRateConfig() RateConfig {
	return RateConfig{
		PlatformPct:  decimal.NewFromFloat(config.PlatformCommissionPct()),
		HostPct:      decimal.NewFromFloat(config.HostCommissionPct()),
		AgentPct:     decimal.NewFromFloat(config.AgentCommissionPct()),
		TolerancePct: decimal.NewFromFloat(config.RateSumTolerancePct()),
	}
}

// LoadRateConfig prefers rates stored in the settings table (the
// configuration store is read-only from this engine's perspective) and falls
// back to the environment defaults.
func LoadRateConfig() RateConfig {
	rc := DefaultRateConfig()
	d := db.GetDb()
	var setting models.Setting
	err := d.
		Model(&models.Setting{}).
		Where(&models.Setting{SettingKey: "commission_rates", Group: "finance"}).
		First(&setting).
		Error
	if err != nil {
		return rc
	}
	for key, dst := range map[string]*decimal.Decimal{
		"platform_pct": &rc.PlatformPct,
		"host_pct":     &rc.HostPct,
		"agent_pct":    &rc.AgentPct,
	} {
		raw, ok := setting.SettingValue[key]
		if !ok {
			continue
		}
		s := fmt.Sprint(raw)
		pct, err := decimal.NewFromString(s)
		if err != nil {
			log.Printf("Ignoring malformed rate setting %s=%q: %s\n", key, s, err.Error())
			continue
		}
		*dst = pct
	}
	return rc
}
