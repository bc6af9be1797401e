package v8

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/cltsim/internal/domain/model"
)

// Field names below are the platform's wire contract and must not change.

type signerPhoneJSON struct {
	PhoneNumber string `json:"phoneNumber"`
	CountryCode string `json:"countryCode"`
	AreaCode    string `json:"areaCode"`
}

type consultRequestJSON struct {
	BorrowerDocumentNumber string          `json:"borrowerDocumentNumber"`
	Gender                 string          `json:"gender"`
	BirthDate              string          `json:"birthDate"`
	SignerName             string          `json:"signerName"`
	SignerEmail            string          `json:"signerEmail"`
	SignerPhone            signerPhoneJSON `json:"signerPhone"`
	Provider               string          `json:"provider"`
}

type consultCreatedJSON struct {
	ID flexString `json:"id"`
}

type consultJSON struct {
	ID                   flexString `json:"id"`
	AvailableMarginValue flexFloat  `json:"availableMarginValue"`
	Status               string     `json:"status"`
	Description          string     `json:"description"`
}

type consultListJSON struct {
	Data []consultJSON `json:"data"`
}

type configJSON struct {
	ID                   flexString `json:"id"`
	Name                 string     `json:"name"`
	NumberOfInstallments []flexInt  `json:"number_of_installments"`
	Insurance            bool       `json:"insurance"`
}

type configListJSON struct {
	Configs []configJSON `json:"configs"`
}

type simulationRequestJSON struct {
	ConsultID            string  `json:"consult_id"`
	ConfigID             string  `json:"config_id"`
	InstallmentFaceValue float64 `json:"installment_face_value"`
	NumberOfInstallments int     `json:"number_of_installments"`
	Provider             string  `json:"provider"`
}

type simulationJSON struct {
	ID                   flexString `json:"id"`
	InstallmentValue     flexFloat  `json:"installment_value"`
	DisbursedAmount      flexFloat  `json:"disbursed_amount"`
	NumberOfInstallments flexInt    `json:"number_of_installments"`
	AnnualCET            flexFloat  `json:"annual_cet"`
}

// encodeConsultRequest marshals the consent payload. Field order is fixed by
// the struct, so equal requests encode to identical bytes.
func encodeConsultRequest(req model.ConsultRequest) ([]byte, error) {
	return json.Marshal(consultRequestJSON{
		BorrowerDocumentNumber: req.DocumentNumber,
		Gender:                 req.Gender,
		BirthDate:              req.BirthDate,
		SignerName:             req.SignerName,
		SignerEmail:            req.SignerEmail,
		SignerPhone: signerPhoneJSON{
			PhoneNumber: req.SignerPhone.Number,
			CountryCode: model.PhoneCountryCode,
			AreaCode:    req.SignerPhone.AreaCode,
		},
		Provider: req.Provider,
	})
}

// isoMillis formats t the way the platform's search filters expect:
// UTC, millisecond precision, trailing Z.
func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// mapConsult converts a wire consult entry to a domain snapshot.
func mapConsult(c consultJSON) model.MarginSnapshot {
	return model.MarginSnapshot{
		TermID:          string(c.ID),
		AvailableMargin: float64(c.AvailableMarginValue),
		Status:          model.MarginStatus(c.Status),
		Description:     c.Description,
	}
}

// mapConfig converts a wire config to a domain FinancingConfig.
func mapConfig(c configJSON) model.FinancingConfig {
	installments := make([]int, 0, len(c.NumberOfInstallments))
	for _, n := range c.NumberOfInstallments {
		installments = append(installments, int(n))
	}
	return model.FinancingConfig{
		ID:           string(c.ID),
		Name:         c.Name,
		Installments: installments,
		Insurance:    c.Insurance,
	}
}

// flexFloat decodes a JSON number, a numeric string, or null.
type flexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil || s == "" {
		*f = 0
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexInt decodes a JSON integer or a numeric string such as "24".
type flexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (n *flexInt) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil || s == "" {
		*n = 0
		return err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", s, err)
	}
	*n = flexInt(int(v))
	return nil
}

// flexString decodes a JSON string or number as text. Numbers keep their
// literal form, so 123 becomes "123". null decodes to "".
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid identifier %s: %w", b, err)
	}
	*s = flexString(n.String())
	return nil
}

func unquoteNumber(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	return string(b), nil
}
