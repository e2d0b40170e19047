package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// RiskPolicy holds the weights and ceilings used to score settlement requests.
// Money values are minor units.
type RiskPolicy struct {
	ApproveCeiling     int     `mapstructure:"approve_ceiling" json:"approve_ceiling"`
	ReviewCeiling      int     `mapstructure:"review_ceiling" json:"review_ceiling"`
	MaxScore           int     `mapstructure:"max_score" json:"max_score"`
	TransactionCeiling int64   `mapstructure:"transaction_ceiling" json:"transaction_ceiling"`
	DailyCap           int64   `mapstructure:"daily_cap" json:"daily_cap"`
	DailyWarnRatio     float64 `mapstructure:"daily_warn_ratio" json:"daily_warn_ratio"`
	DailyWarnScore     int     `mapstructure:"daily_warn_score" json:"daily_warn_score"`
	HighValueRatio     float64 `mapstructure:"high_value_ratio" json:"high_value_ratio"`
	HighValueScore     int     `mapstructure:"high_value_score" json:"high_value_score"`
	RefundWeightFactor float64 `mapstructure:"refund_weight_factor" json:"refund_weight_factor"`

	NewAccountAge     time.Duration `mapstructure:"new_account_age" json:"new_account_age"`
	NewAccountScore   int           `mapstructure:"new_account_score" json:"new_account_score"`
	YoungAccountAge   time.Duration `mapstructure:"young_account_age" json:"young_account_age"`
	YoungAccountScore int           `mapstructure:"young_account_score" json:"young_account_score"`

	PatternWindow        time.Duration `mapstructure:"pattern_window" json:"pattern_window"`
	HighVolumeCeiling    int           `mapstructure:"high_volume_ceiling" json:"high_volume_ceiling"`
	HighVolumeScore      int           `mapstructure:"high_volume_score" json:"high_volume_score"`
	IdenticalAmountCount int           `mapstructure:"identical_amount_count" json:"identical_amount_count"`
	AutomationScore      int           `mapstructure:"automation_score" json:"automation_score"`
	FailedCeiling        int           `mapstructure:"failed_ceiling" json:"failed_ceiling"`
	RepeatedFailureScore int           `mapstructure:"repeated_failure_score" json:"repeated_failure_score"`

	RecentChangeWindow time.Duration `mapstructure:"recent_change_window" json:"recent_change_window"`
	RecentChangeScore  int           `mapstructure:"recent_change_score" json:"recent_change_score"`
	NewRenterAge       time.Duration `mapstructure:"new_renter_age" json:"new_renter_age"`
	NewRenterScore     int           `mapstructure:"new_renter_score" json:"new_renter_score"`
}

const day = 24 * time.Hour

func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		ApproveCeiling:     20,
		ReviewCeiling:      70,
		MaxScore:           100,
		TransactionCeiling: 2_000_00,
		DailyCap:           5_000_00,
		DailyWarnRatio:     0.8,
		DailyWarnScore:     10,
		HighValueRatio:     0.9,
		HighValueScore:     15,
		RefundWeightFactor: 0.5,

		NewAccountAge:     7 * day,
		NewAccountScore:   40,
		YoungAccountAge:   30 * day,
		YoungAccountScore: 15,

		PatternWindow:        30 * day,
		HighVolumeCeiling:    20,
		HighVolumeScore:      25,
		IdenticalAmountCount: 5,
		AutomationScore:      30,
		FailedCeiling:        3,
		RepeatedFailureScore: 20,

		RecentChangeWindow: 7 * day,
		RecentChangeScore:  20,
		NewRenterAge:       3 * day,
		NewRenterScore:     10,
	}
}

type RiskPolicyHolder struct {
	current atomic.Value // holds RiskPolicy
}

// NewStaticRiskPolicy returns a holder that never reloads.
func NewStaticRiskPolicy(policy RiskPolicy) *RiskPolicyHolder {
	holder := &RiskPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewRiskPolicyHolder(log *zap.Logger) (*RiskPolicyHolder, error) {
	log = log.Named("config.risk")
	v := viper.New()

	v.SetConfigName("risk_policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/payoutd/config")
	v.AddConfigPath("/etc/payoutd")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PAYOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setRiskDefaults(v, DefaultRiskPolicy())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Info("risk policy file not found, using defaults")
	}

	policy, err := decodeRiskPolicy(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateRiskPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticRiskPolicy(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRiskPolicy(v)
		if err != nil {
			log.Warn("risk policy reload failed", zap.Error(err))
			return
		}
		if err := ValidateRiskPolicy(updated); err != nil {
			log.Warn("invalid risk policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("risk policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *RiskPolicyHolder) Get() RiskPolicy {
	return h.current.Load().(RiskPolicy)
}

// decodeRiskPolicy merges file, env, and defaults; UnmarshalKey would drop
// defaults for keys missing from a partial file.
func decodeRiskPolicy(v *viper.Viper) (RiskPolicy, error) {
	var wrapper struct {
		Risk RiskPolicy `mapstructure:"risk" json:"risk"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return RiskPolicy{}, err
	}
	return wrapper.Risk, nil
}

func setRiskDefaults(v *viper.Viper, d RiskPolicy) {
	defaults := map[string]any{
		"approve_ceiling":        d.ApproveCeiling,
		"review_ceiling":         d.ReviewCeiling,
		"max_score":              d.MaxScore,
		"transaction_ceiling":    d.TransactionCeiling,
		"daily_cap":              d.DailyCap,
		"daily_warn_ratio":       d.DailyWarnRatio,
		"daily_warn_score":       d.DailyWarnScore,
		"high_value_ratio":       d.HighValueRatio,
		"high_value_score":       d.HighValueScore,
		"refund_weight_factor":   d.RefundWeightFactor,
		"new_account_age":        d.NewAccountAge,
		"new_account_score":      d.NewAccountScore,
		"young_account_age":      d.YoungAccountAge,
		"young_account_score":    d.YoungAccountScore,
		"pattern_window":         d.PatternWindow,
		"high_volume_ceiling":    d.HighVolumeCeiling,
		"high_volume_score":      d.HighVolumeScore,
		"identical_amount_count": d.IdenticalAmountCount,
		"automation_score":       d.AutomationScore,
		"failed_ceiling":         d.FailedCeiling,
		"repeated_failure_score": d.RepeatedFailureScore,
		"recent_change_window":   d.RecentChangeWindow,
		"recent_change_score":    d.RecentChangeScore,
		"new_renter_age":         d.NewRenterAge,
		"new_renter_score":       d.NewRenterScore,
	}
	for key, value := range defaults {
		v.SetDefault("risk."+key, value)
	}
}

func ValidateRiskPolicy(p RiskPolicy) error {
	if p.MaxScore <= 0 {
		return errors.New("risk.max_score must be positive")
	}
	if p.ApproveCeiling < 0 || p.ApproveCeiling > p.ReviewCeiling {
		return errors.New("risk.approve_ceiling must be between 0 and risk.review_ceiling")
	}
	if p.ReviewCeiling >= p.MaxScore {
		return errors.New("risk.review_ceiling must be below risk.max_score")
	}
	if p.TransactionCeiling <= 0 || p.DailyCap <= 0 {
		return errors.New("risk.transaction_ceiling and risk.daily_cap must be positive")
	}
	if p.DailyWarnRatio <= 0 || p.DailyWarnRatio > 1 {
		return errors.New("risk.daily_warn_ratio must be in (0, 1]")
	}
	if p.HighValueRatio <= 0 || p.HighValueRatio > 1 {
		return errors.New("risk.high_value_ratio must be in (0, 1]")
	}
	if p.RefundWeightFactor < 0 || p.RefundWeightFactor > 1 {
		return errors.New("risk.refund_weight_factor must be in [0, 1]")
	}
	if p.PatternWindow <= 0 {
		return errors.New("risk.pattern_window must be positive")
	}
	if p.NewAccountAge > p.YoungAccountAge {
		return errors.New("risk.new_account_age must not exceed risk.young_account_age")
	}
	return nil
}
