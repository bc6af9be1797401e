package model

import (
	"encoding/json"
	"math"
	"slices"
)

// Negotiation limits fixed by the provider's product rules.
const (
	// MaxTotal caps the total disbursed principal of a single operation.
	MaxTotal = 25000.0
	// MinDisburse is the smallest total the provider will simulate.
	MinDisburse = 800.0
)

// FinancingConfig is a provider financing variant naming the installment
// counts it permits. Insurance reports whether the variant bundles credit
// insurance the borrower must be eligible for.
type FinancingConfig struct {
	ID           string
	Name         string
	Installments []int
	Insurance    bool
}

// InstallmentsDescending returns the distinct positive installment counts,
// longest term first.
func (c FinancingConfig) InstallmentsDescending() []int {
	out := make([]int, 0, len(c.Installments))
	for _, n := range c.Installments {
		if n > 0 && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	slices.Reverse(out)
	return out
}

// SimulationRequest is one installment option submitted to the provider.
type SimulationRequest struct {
	TermID           string
	ConfigID         string
	InstallmentValue float64
	InstallmentCount int
	Provider         string
}

// ProviderSimulation is the provider's answer to an accepted SimulationRequest.
type ProviderSimulation struct {
	ID               string
	InstallmentValue float64
	DisbursedAmount  float64
	InstallmentCount int
	AnnualCostRate   float64
	Raw              json.RawMessage
}

// SimulationResult is the accepted simulation. RequestedAmount is the locally
// computed total; the remaining values are the provider's.
type SimulationResult struct {
	RequestedAmount  float64
	InstallmentCount int
	InstallmentValue float64
	DisbursedAmount  float64
	AnnualCostRate   float64
	ConfigID         string
	SimulationID     string
	Raw              json.RawMessage
}

// SimulationOutcome is what one workflow run returns to the caller.
type SimulationOutcome struct {
	CPF             string
	TermID          string
	AvailableMargin float64
	Result          SimulationResult
}

// InstallmentPlan computes the per-installment value and total for n
// installments under margin, capped by MaxTotal. Values are floored to cents
// so the total never exceeds the cap.
func InstallmentPlan(margin float64, n int) (perInstallment, total float64) {
	if n <= 0 || margin <= 0 {
		return 0, 0
	}
	perInstallment = FloorCents(math.Min(margin, MaxTotal/float64(n)))
	total = math.Round(perInstallment*float64(n)*100) / 100
	return perInstallment, total
}

// FloorCents truncates v to two decimal places.
func FloorCents(v float64) float64 {
	return math.Floor(v*100+1e-9) / 100
}
