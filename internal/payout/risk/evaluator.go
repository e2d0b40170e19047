// Package risk scores settlement requests. Evaluate only computes: callers
// gather the account, booking, and ledger snapshot it reads.
package risk

import (
	"math"
	"time"

	"github.com/smallbiznis/payoutd/internal/config"
	"github.com/smallbiznis/payoutd/internal/payout/domain"
)

const (
	FlagAccountAgeUnderWeek = "account_age_under_7_days"
	FlagAccountAgeUnknown   = "account_age_unknown"
	FlagHighVolume          = "high_volume"
	FlagSuspectedAutomation = "suspected_automation"
	FlagRepeatedFailures    = "repeated_failures"
	FlagDailyLimitExceeded  = "daily_limit_exceeded"
	FlagOwnershipMismatch   = "ownership_mismatch"
	FlagRecentAccountChange = "recent_account_change"
	FlagTransactionCeiling  = "transaction_ceiling_exceeded"
)

const (
	checkAccountAge         = "account_age"
	checkTransactionPattern = "transaction_pattern"
	checkDailyLimit         = "daily_limit"
	checkOwnership          = "ownership"
	checkRecentMutation     = "recent_mutation"
	checkCounterpartyTrust  = "counterparty_trust"
	checkHighValue          = "high_value"
)

// Party is the slice of an account the evaluator reads. Nil timestamps mean
// the lookup had no value.
type Party struct {
	CreatedAt        *time.Time
	ProfileUpdatedAt *time.Time
}

type Input struct {
	Method    domain.Method
	NetAmount int64
	// PayeeID is the account the request wants to pay.
	PayeeID int64
	// BookingOwnerID is the vehicle owner on record; ignored for refunds.
	BookingOwnerID int64
	Payee          *Party
	Renter         *Party
	Stats          domain.PayeeWindowStats
	SettledToday   int64
	Now            time.Time
}

// Check is one contribution to the score.
type Check struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Flag  string `json:"flag,omitempty"`
	Hard  bool   `json:"hard,omitempty"`
}

type Assessment struct {
	Score                int      `json:"score"`
	Flags                []string `json:"flags"`
	IsApproved           bool     `json:"is_approved"`
	RequiresManualReview bool     `json:"requires_manual_review"`
	Checks               []Check  `json:"checks,omitempty"`
}

// Rejected reports whether the request is denied outright.
func (a Assessment) Rejected() bool {
	return !a.IsApproved && !a.RequiresManualReview
}

// HardStop reports whether any check saturated the score.
func (a Assessment) HardStop() bool {
	for _, c := range a.Checks {
		if c.Hard {
			return true
		}
	}
	return false
}

func Evaluate(policy config.RiskPolicy, in Input) Assessment {
	e := evaluation{policy: policy, refund: in.Method == domain.MethodRefund}

	e.accountAge(in)
	e.transactionPattern(in)
	e.dailyLimit(in)
	if !e.refund {
		e.ownership(in)
	}
	e.recentMutation(in)
	e.counterparty(in)
	e.highValue(in)

	return e.decide()
}

type evaluation struct {
	policy config.RiskPolicy
	refund bool
	checks []Check
}

func (e *evaluation) soft(name string, score int, flag string) {
	if e.refund {
		score = int(math.Round(float64(score) * e.policy.RefundWeightFactor))
	}
	e.checks = append(e.checks, Check{Name: name, Score: score, Flag: flag})
}

func (e *evaluation) hard(name, flag string) {
	e.checks = append(e.checks, Check{Name: name, Score: e.policy.MaxScore, Flag: flag, Hard: true})
}

func (e *evaluation) accountAge(in Input) {
	if in.Payee == nil || in.Payee.CreatedAt == nil {
		e.hard(checkAccountAge, FlagAccountAgeUnknown)
		return
	}
	age := in.Now.Sub(*in.Payee.CreatedAt)
	switch {
	case age < e.policy.NewAccountAge:
		e.soft(checkAccountAge, e.policy.NewAccountScore, FlagAccountAgeUnderWeek)
	case age < e.policy.YoungAccountAge:
		e.soft(checkAccountAge, e.policy.YoungAccountScore, "")
	}
}

func (e *evaluation) transactionPattern(in Input) {
	if in.Stats.Count > e.policy.HighVolumeCeiling {
		e.soft(checkTransactionPattern, e.policy.HighVolumeScore, FlagHighVolume)
	}
	if identicalAmounts(in.Stats.RecentAmounts, e.policy.IdenticalAmountCount) {
		e.soft(checkTransactionPattern, e.policy.AutomationScore, FlagSuspectedAutomation)
	}
	if in.Stats.FailedCount > e.policy.FailedCeiling {
		e.soft(checkTransactionPattern, e.policy.RepeatedFailureScore, FlagRepeatedFailures)
	}
}

// identicalAmounts reports whether the newest n amounts are all equal.
func identicalAmounts(amounts []int64, n int) bool {
	if n <= 0 || len(amounts) < n {
		return false
	}
	for _, a := range amounts[1:n] {
		if a != amounts[0] {
			return false
		}
	}
	return true
}

func (e *evaluation) dailyLimit(in Input) {
	projected := in.SettledToday + in.NetAmount
	switch {
	case projected > e.policy.DailyCap:
		e.hard(checkDailyLimit, FlagDailyLimitExceeded)
	case float64(projected) > float64(e.policy.DailyCap)*e.policy.DailyWarnRatio:
		e.soft(checkDailyLimit, e.policy.DailyWarnScore, "")
	}
}

func (e *evaluation) ownership(in Input) {
	if in.BookingOwnerID != in.PayeeID {
		e.hard(checkOwnership, FlagOwnershipMismatch)
	}
}

func (e *evaluation) recentMutation(in Input) {
	if in.Payee == nil || in.Payee.ProfileUpdatedAt == nil {
		return
	}
	if in.Now.Sub(*in.Payee.ProfileUpdatedAt) < e.policy.RecentChangeWindow {
		e.soft(checkRecentMutation, e.policy.RecentChangeScore, FlagRecentAccountChange)
	}
}

// counterparty treats a missing renter account as new.
func (e *evaluation) counterparty(in Input) {
	if in.Renter == nil || in.Renter.CreatedAt == nil || in.Now.Sub(*in.Renter.CreatedAt) < e.policy.NewRenterAge {
		e.soft(checkCounterpartyTrust, e.policy.NewRenterScore, "")
	}
}

func (e *evaluation) highValue(in Input) {
	if float64(in.NetAmount) >= float64(e.policy.TransactionCeiling)*e.policy.HighValueRatio {
		e.soft(checkHighValue, e.policy.HighValueScore, "")
	}
}

func (e *evaluation) decide() Assessment {
	a := Assessment{Flags: []string{}, Checks: e.checks}
	for _, c := range e.checks {
		a.Score += c.Score
		if c.Flag != "" {
			a.Flags = append(a.Flags, c.Flag)
		}
	}
	if a.Score > e.policy.MaxScore || a.HardStop() {
		a.Score = e.policy.MaxScore
	}
	a.IsApproved = a.Score <= e.policy.ApproveCeiling && len(a.Flags) == 0
	a.RequiresManualReview = !a.IsApproved && a.Score <= e.policy.ReviewCeiling
	return a
}
