// Package params turns raw form input into the typed parameter payload sent to the allocation service.
//
// Normalization is total: invalid or empty input is omitted from the payload so the
// service applies its own defaults.
package params

import (
	"math"
	"strconv"
	"strings"

	"github.com/saltfish/allocdesk/internal/domain"
)

// ParseTickers splits a comma-separated list into trimmed, upper-case tickers, dropping empties.
func ParseTickers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.ToUpper(strings.TrimSpace(p))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseNumber parses a finite floating-point number from raw input.
func ParseNumber(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NormalizeGeneric builds a payload from the strategy's parameter specs.
func NormalizeGeneric(specs []domain.ParameterSpec, raw domain.RawParams) domain.ParameterPayload {
	payload := make(domain.ParameterPayload)
	for _, spec := range specs {
		value, ok := raw[spec.Name]
		if !ok {
			continue
		}
		switch specType(spec) {
		case domain.ParameterTypeNumber:
			if n, ok := ParseNumber(value); ok {
				payload[spec.Name] = n
			}
		case domain.ParameterTypeTickerList:
			if tickers := ParseTickers(value); len(tickers) > 0 {
				payload[spec.Name] = tickers
			}
		default:
			if value != "" {
				payload[spec.Name] = value
			}
		}
	}
	return payload
}

// specType resolves the normalization class, applying the ticker-list naming rule
// to specs whose type was not set explicitly.
func specType(spec domain.ParameterSpec) domain.ParameterType {
	if spec.Type == domain.ParameterTypeNumber || spec.Type == domain.ParameterTypeTickerList {
		return spec.Type
	}
	if domain.IsTickerListName(spec.Name) {
		return domain.ParameterTypeTickerList
	}
	return domain.ParameterTypeText
}

func putNumber(payload domain.ParameterPayload, name string, raw domain.RawParams) {
	if n, ok := ParseNumber(raw[name]); ok {
		payload[name] = n
	}
}

func putTickers(payload domain.ParameterPayload, name string, raw domain.RawParams) {
	if tickers := ParseTickers(raw[name]); len(tickers) > 0 {
		payload[name] = tickers
	}
}
