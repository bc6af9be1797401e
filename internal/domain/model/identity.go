package model

import (
	"net/mail"
	"strings"
	"time"
)

// CPFLength is the fixed width of a normalized Brazilian document number.
const CPFLength = 11

// Defaults applied when the person record lacks a field the consent term requires.
const (
	DefaultGender    = "male"
	DefaultName      = "NOME DESCONHECIDO"
	DefaultEmail     = "email@teste.com"
	DefaultAreaCode  = "71"
	DefaultPhone     = "999999999"
	PhoneCountryCode = "55"
)

// birthDateLayouts lists the accepted source formats, most specific first.
var birthDateLayouts = []string{"2006-01-02", "02/01/2006"}

// NormalizeCPF strips every non-digit character and left-pads the result with
// zeros to CPFLength. It returns false when nothing is left or the input holds
// more digits than a CPF can.
func NormalizeCPF(raw string) (string, bool) {
	digits := digitsOnly(raw)
	if digits == "" || len(digits) > CPFLength {
		return "", false
	}
	return strings.Repeat("0", CPFLength-len(digits)) + digits, true
}

// MaskCPF keeps only the last four digits, for logging.
func MaskCPF(cpf string) string {
	if len(cpf) <= 4 {
		return cpf
	}
	return strings.Repeat("*", len(cpf)-4) + cpf[len(cpf)-4:]
}

// NormalizeBirthDate converts DD/MM/YYYY or YYYY-MM-DD into YYYY-MM-DD.
// ISO timestamps are reduced to their date part. Anything else is rejected.
func NormalizeBirthDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if len(raw) > 10 && raw[10] == 'T' {
		raw = raw[:10]
	}

	for _, layout := range birthDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// Person is the raw record returned by the person lookup service. Fields keep
// the source's loose shape; Identity is the normalized view.
type Person struct {
	CPF       string
	Name      string
	BirthDate string
	Gender    string
	Email     string
	AreaCode  string
	Phone     string
}

// Phone is a borrower phone split into area code and local number.
type Phone struct {
	AreaCode string
	Number   string
}

// Identity holds the normalized borrower attributes needed to register a
// consent term. BirthDate is empty when the source value was missing or in an
// unrecognized format; ConsentRegistrar rejects such identities.
type Identity struct {
	CPF       string
	BirthDate string
	Name      string
	Email     string
	Phone     Phone
	Gender    string
}

// NewIdentity builds an Identity from a person record, applying the
// documented defaults. cpf must already be normalized.
func NewIdentity(cpf string, p Person) Identity {
	birthDate, _ := NormalizeBirthDate(p.BirthDate)

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = DefaultName
	}

	return Identity{
		CPF:       cpf,
		BirthDate: birthDate,
		Name:      name,
		Email:     normalizeEmail(p.Email),
		Phone:     normalizePhone(p.AreaCode, p.Phone),
		Gender:    normalizeGender(p.Gender),
	}
}

func normalizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultEmail
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return DefaultEmail
	}
	return raw
}

// normalizePhone accepts either a split area code + number or a single string
// holding both (10 or 11 digits, optionally prefixed by country code 55).
func normalizePhone(areaCode, number string) Phone {
	area := digitsOnly(areaCode)
	num := digitsOnly(number)

	if area == "" && len(num) >= 10 {
		if len(num) > 11 && strings.HasPrefix(num, PhoneCountryCode) {
			num = num[len(PhoneCountryCode):]
		}
		area, num = num[:2], num[2:]
	}

	if area == "" {
		area = DefaultAreaCode
	}
	if num == "" {
		num = DefaultPhone
	}
	return Phone{AreaCode: area, Number: num}
}

func normalizeGender(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "F", "FEM", "FEMININO", "FEMALE":
		return "female"
	default:
		return DefaultGender
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
