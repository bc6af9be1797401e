package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
	"github.com/ericfisherdev/cltsim/internal/domain/port/driven"
	"github.com/ericfisherdev/cltsim/internal/platform/metrics"
)

// SimulationFailure classifies a rejected simulation submission.
type SimulationFailure int

const (
	// FailureUnexpected aborts the whole negotiation.
	FailureUnexpected SimulationFailure = iota
	// FailureOptionNonviable rules out this installment count only.
	FailureOptionNonviable
	// FailureInsuranceIneligible rules out the current financing config.
	FailureInsuranceIneligible
)

// String returns a human-readable name for the failure class.
func (f SimulationFailure) String() string {
	switch f {
	case FailureOptionNonviable:
		return "nonviable"
	case FailureInsuranceIneligible:
		return "insurance_ineligible"
	default:
		return "unexpected"
	}
}

// failureVocabulary maps provider reason substrings to failure classes. Rules
// are checked in order; the first class with a matching term wins.
var failureVocabulary = []struct {
	class SimulationFailure
	terms []string
}{
	{FailureOptionNonviable, []string{"installment", "margin", "above", "minimum", "under"}},
	{FailureInsuranceIneligible, []string{"insurance"}},
}

// ClassifySimulationFailure maps the provider's failure text to a class.
func ClassifySimulationFailure(reason string) SimulationFailure {
	reason = strings.ToLower(reason)
	for _, rule := range failureVocabulary {
		for _, term := range rule.terms {
			if strings.Contains(reason, term) {
				return rule.class
			}
		}
	}
	return FailureUnexpected
}

// failureReason extracts the human-readable parts of a provider error body.
// Bodies that are not JSON are used as-is.
func failureReason(body string) string {
	var payload struct {
		Title   string `json:"title"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return body
	}
	reason := strings.TrimSpace(strings.Join([]string{payload.Title, payload.Detail, payload.Message, payload.Error}, " "))
	if reason == "" {
		return body
	}
	return reason
}

// PlanVariants orders the financing configs to try: the primary (first)
// config, then the first other config without insurance. When every other
// config carries insurance only the primary is returned.
func PlanVariants(configs []model.FinancingConfig) []model.FinancingConfig {
	if len(configs) == 0 {
		return nil
	}
	variants := []model.FinancingConfig{configs[0]}
	for _, c := range configs[1:] {
		if !c.Insurance {
			return append(variants, c)
		}
	}
	return variants
}

// InstallmentNegotiator searches installment counts, longest first, across
// financing variants until the platform accepts a simulation.
type InstallmentNegotiator struct {
	client  driven.ConsignmentClient
	tokens  *TokenCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewInstallmentNegotiator creates an InstallmentNegotiator. m and logger may be nil.
func NewInstallmentNegotiator(client driven.ConsignmentClient, tokens *TokenCache, m *metrics.Metrics, logger *slog.Logger) *InstallmentNegotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstallmentNegotiator{client: client, tokens: tokens, metrics: m, logger: logger}
}

// Negotiate returns the first accepted simulation. When every count of every
// tried variant is pruned or nonviable it returns a KindNotFound error
// wrapping model.ErrNoViablePlan.
func (n *InstallmentNegotiator) Negotiate(ctx context.Context, termID string, configs []model.FinancingConfig, availableMargin float64) (model.SimulationResult, error) {
	variants := PlanVariants(configs)

	for i, cfg := range variants {
		result, accepted, err := n.tryVariant(ctx, termID, cfg, availableMargin)
		if err == nil && accepted {
			return result, nil
		}

		if !errors.Is(err, errInsuranceIneligible) {
			if err != nil {
				return model.SimulationResult{}, err
			}
			// Exhausted without acceptance; the fallback only applies to insurance failures.
			break
		}

		if i+1 < len(variants) {
			n.logger.Info("financing config requires insurance, trying fallback",
				"term_id", termID,
				"config_id", cfg.ID,
				"fallback_config_id", variants[i+1].ID,
			)
		}
	}

	n.logger.Info("no viable installment plan", "term_id", termID, "available_margin", availableMargin)
	return model.SimulationResult{}, model.NewError(model.KindNotFound, "negotiate",
		"margin cannot support any offered plan", model.ErrNoViablePlan)
}

// errInsuranceIneligible signals tryVariant's caller to move to the fallback.
var errInsuranceIneligible = errors.New("borrower ineligible for config insurance")

// tryVariant runs the inner search over one config's installment counts.
func (n *InstallmentNegotiator) tryVariant(ctx context.Context, termID string, cfg model.FinancingConfig, margin float64) (model.SimulationResult, bool, error) {
	for _, count := range cfg.InstallmentsDescending() {
		perInstallment, total := model.InstallmentPlan(margin, count)
		if total < model.MinDisburse {
			n.metrics.ObserveSimulationAttempt("pruned")
			n.logger.Debug("installment count below minimum disbursement",
				"term_id", termID,
				"config_id", cfg.ID,
				"installments", count,
				"total", total,
			)
			continue
		}

		req := model.SimulationRequest{
			TermID:           termID,
			ConfigID:         cfg.ID,
			InstallmentValue: perInstallment,
			InstallmentCount: count,
			Provider:         model.Provider,
		}

		var sim *model.ProviderSimulation
		err := n.tokens.Do(ctx, func(ctx context.Context, token string) error {
			var err error
			sim, err = n.client.CreateSimulation(ctx, token, req)
			return err
		})
		if err == nil {
			n.metrics.ObserveSimulationAttempt("accepted")
			n.logger.Info("simulation accepted",
				"term_id", termID,
				"config_id", cfg.ID,
				"installments", count,
				"installment_value", perInstallment,
			)
			return toSimulationResult(req, total, sim), true, nil
		}

		var serr *model.StatusError
		if !errors.As(err, &serr) {
			n.metrics.ObserveSimulationAttempt("error")
			return model.SimulationResult{}, false, upstreamError("negotiate", "simulation request failed", err)
		}

		class := ClassifySimulationFailure(failureReason(serr.Body))
		n.metrics.ObserveSimulationAttempt(class.String())
		n.logger.Debug("simulation rejected",
			"term_id", termID,
			"config_id", cfg.ID,
			"installments", count,
			"status", serr.StatusCode,
			"class", class.String(),
		)

		switch class {
		case FailureOptionNonviable:
			continue
		case FailureInsuranceIneligible:
			return model.SimulationResult{}, false, errInsuranceIneligible
		default:
			return model.SimulationResult{}, false, model.NewError(model.KindUpstream, "negotiate",
				"unexpected simulation failure", err).WithDetail(serr.Body)
		}
	}
	return model.SimulationResult{}, false, nil
}

func toSimulationResult(req model.SimulationRequest, total float64, sim *model.ProviderSimulation) model.SimulationResult {
	res := model.SimulationResult{
		RequestedAmount:  total,
		InstallmentCount: req.InstallmentCount,
		InstallmentValue: req.InstallmentValue,
		ConfigID:         req.ConfigID,
	}
	if sim == nil {
		return res
	}
	if sim.InstallmentValue > 0 {
		res.InstallmentValue = sim.InstallmentValue
	}
	if sim.InstallmentCount > 0 {
		res.InstallmentCount = sim.InstallmentCount
	}
	res.DisbursedAmount = sim.DisbursedAmount
	res.AnnualCostRate = sim.AnnualCostRate
	res.SimulationID = sim.ID
	res.Raw = sim.Raw
	return res
}
