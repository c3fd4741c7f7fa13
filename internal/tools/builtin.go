package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/pensiond/internal/profile"
)

// Builtin returns the standard tool set.
func Builtin() []Tool {
	return []Tool{
		BalanceLookup{},
		ContributionHistory{},
		TaxEstimate{},
		BenefitProjection{},
		WithdrawalRules{},
	}
}

// NewBuiltinRegistry creates a registry holding the standard tool set.
func NewBuiltinRegistry() (*Registry, error) {
	return NewRegistry(Builtin()...)
}

// BalanceLookup reports the member's current balances.
type BalanceLookup struct{}

func (BalanceLookup) Name() string { return "balance_lookup" }

func (BalanceLookup) Description() string {
	return "Current total balance and per-account breakdown for the member"
}

func (BalanceLookup) Invoke(_ context.Context, member profile.MemberContext, _ map[string]string) (map[string]interface{}, error) {
	if len(member.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts on record for member")
	}

	accounts := make([]map[string]interface{}, len(member.Accounts))
	for i, a := range member.Accounts {
		accounts[i] = map[string]interface{}{
			"id":       a.ID,
			"type":     a.Type,
			"balance":  a.Balance,
			"currency": a.Currency,
		}
	}

	return map[string]interface{}{
		"total_balance": member.TotalBalance(),
		"accounts":      accounts,
	}, nil
}

// ContributionHistory reports contribution activity and headroom.
type ContributionHistory struct{}

func (ContributionHistory) Name() string { return "contribution_history" }

func (ContributionHistory) Description() string {
	return "Member and employer contribution amounts and remaining annual headroom"
}

// annualContributionCap returns the jurisdiction's yearly contribution
// limit used for headroom reporting.
func annualContributionCap(countryCode string, age int) float64 {
	switch countryCode {
	case "US":
		cap := 23500.0
		if age >= 50 {
			cap += 7500 // catch-up
		}
		return cap
	case "AU":
		return 30000
	case "GB":
		return 60000
	default:
		return 20000
	}
}

func (ContributionHistory) Invoke(_ context.Context, member profile.MemberContext, _ map[string]string) (map[string]interface{}, error) {
	if member.AnnualSalary <= 0 {
		return nil, fmt.Errorf("no salary on record for member")
	}

	annual := member.AnnualSalary * member.ContributionRate
	cap := annualContributionCap(member.CountryCode, member.Age)
	headroom := cap - annual
	if headroom < 0 {
		headroom = 0
	}

	return map[string]interface{}{
		"annual_contribution": annual,
		"contribution_rate":   member.ContributionRate,
		"annual_cap":          cap,
		"remaining_headroom":  headroom,
	}, nil
}

// TaxEstimate reports the tax treatment applying to the member's scheme.
type TaxEstimate struct{}

func (TaxEstimate) Name() string { return "tax_estimate" }

func (TaxEstimate) Description() string {
	return "Tax treatment of contributions and withdrawals for the member's jurisdiction"
}

func (TaxEstimate) Invoke(_ context.Context, member profile.MemberContext, params map[string]string) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"country_code": member.CountryCode,
	}

	switch member.CountryCode {
	case "US":
		out["contribution_treatment"] = "pre-tax (traditional) or post-tax (Roth)"
		out["withdrawal_treatment"] = "ordinary income for traditional; qualified Roth withdrawals tax-free"
		out["early_withdrawal_surcharge_rate"] = 0.10
	case "AU":
		out["contribution_treatment"] = "concessional contributions taxed at 15% in fund"
		out["withdrawal_treatment"] = "tax-free from age 60"
		out["early_withdrawal_surcharge_rate"] = 0.20
	case "GB":
		out["contribution_treatment"] = "tax relief at marginal rate"
		out["withdrawal_treatment"] = "25% tax-free lump sum, remainder at marginal rate"
		out["early_withdrawal_surcharge_rate"] = 0.55
	default:
		return nil, fmt.Errorf("no tax rules available for country %q", member.CountryCode)
	}

	if amountStr, ok := params["amount"]; ok {
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("invalid amount parameter %q", amountStr)
		}
		rate := out["early_withdrawal_surcharge_rate"].(float64)
		out["estimated_early_withdrawal_surcharge"] = amount * rate
	}

	return out, nil
}

// BenefitProjection projects the balance at retirement age.
type BenefitProjection struct{}

func (BenefitProjection) Name() string { return "benefit_projection" }

func (BenefitProjection) Description() string {
	return "Projected balance and annual income at retirement age"
}

// defaultAnnualReturn is the nominal growth assumption used when the
// caller supplies none.
const defaultAnnualReturn = 0.05

// drawdownRate converts a retirement balance to sustainable annual income.
const drawdownRate = 0.04

func (BenefitProjection) Invoke(_ context.Context, member profile.MemberContext, params map[string]string) (map[string]interface{}, error) {
	if member.Age <= 0 {
		return nil, fmt.Errorf("no age on record for member")
	}

	retirementAge := member.RetirementAge
	if v, ok := params["retirement_age"]; ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid retirement_age parameter %q", v)
		}
		retirementAge = parsed
	}
	if retirementAge == 0 {
		retirementAge = 67
	}
	if retirementAge < member.Age {
		return nil, fmt.Errorf("retirement age %d is before current age %d", retirementAge, member.Age)
	}

	annualReturn := defaultAnnualReturn
	if v, ok := params["annual_return"]; ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 || parsed > 0.2 {
			return nil, fmt.Errorf("invalid annual_return parameter %q", v)
		}
		annualReturn = parsed
	}

	years := retirementAge - member.Age
	balance := member.TotalBalance()
	annualContribution := member.AnnualSalary * member.ContributionRate

	// Grow existing balance and contributions year by year.
	projected := balance
	for i := 0; i < years; i++ {
		projected = projected*(1+annualReturn) + annualContribution
	}
	projected = math.Round(projected*100) / 100

	return map[string]interface{}{
		"retirement_age":      retirementAge,
		"years_to_retirement": years,
		"assumed_return":      annualReturn,
		"projected_balance":   projected,
		"projected_income":    math.Round(projected*drawdownRate*100) / 100,
	}, nil
}

// WithdrawalRules reports when and how the member can access funds.
type WithdrawalRules struct{}

func (WithdrawalRules) Name() string { return "withdrawal_rules" }

func (WithdrawalRules) Description() string {
	return "Access age, early-withdrawal conditions, and penalties for the member's jurisdiction"
}

func (WithdrawalRules) Invoke(_ context.Context, member profile.MemberContext, _ map[string]string) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"country_code": member.CountryCode,
		"current_age":  member.Age,
	}

	switch member.CountryCode {
	case "US":
		out["access_age"] = 59.5
		out["early_access_conditions"] = []string{"hardship distribution", "substantially equal periodic payments", "disability"}
		out["early_penalty_rate"] = 0.10
		out["accessible_now"] = float64(member.Age) >= 59.5
	case "AU":
		out["access_age"] = 60
		out["early_access_conditions"] = []string{"severe financial hardship", "compassionate grounds", "permanent incapacity"}
		out["early_penalty_rate"] = 0.0
		out["accessible_now"] = member.Age >= 60
	case "GB":
		out["access_age"] = 55
		out["early_access_conditions"] = []string{"serious ill health"}
		out["early_penalty_rate"] = 0.55
		out["accessible_now"] = member.Age >= 55
	default:
		return nil, fmt.Errorf("no withdrawal rules available for country %q", member.CountryCode)
	}

	return out, nil
}

// NewCall builds a Call stamped with the current time.
func NewCall(toolName string, params map[string]string) Call {
	return Call{
		ToolName:   toolName,
		Parameters: params,
		IssuedAt:   time.Now(),
	}
}
