package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/efbdata/impact_dashboard/keys"
	"github.com/efbdata/impact_dashboard/models"
	"github.com/efbdata/impact_dashboard/parser"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MetricInput is the validated view of one ingested record.
type MetricInput struct {
	SectionKey      string `validate:"required"`
	MetricKey       string `validate:"required"`
	MetricName      string `validate:"required"`
	CurrentValue    string `validate:"required"`
	DisplayOrder    int    `validate:"gte=0"`
	FormatType      string `validate:"omitempty,oneof=number currency percentage text simple"`
	ChangeDirection string `validate:"omitempty,oneof=up down stable"`

	// SourceKey is the metric key as supplied, before alias resolution.
	SourceKey string
}

func inputOf(r models.MetricRecord, sourceKey string) MetricInput {
	return MetricInput{
		SourceKey:       sourceKey,
		SectionKey:      r.SectionKey,
		MetricKey:       r.MetricKey,
		MetricName:      r.MetricName,
		CurrentValue:    r.CurrentValue,
		DisplayOrder:    r.DisplayOrder,
		FormatType:      string(r.FormatType),
		ChangeDirection: string(r.ChangeDirection),
	}
}

var rateTokens = map[string]bool{"percentage": true, "percent": true, "rate": true, "efficiency": true}

// isRateMetric reports whether a metric holds a percentage. Matching is on
// whole words of the name and of the key before and after alias resolution,
// so "generated" is not a rate and an alias cannot hide one.
func isRateMetric(in MetricInput) bool {
	if in.FormatType == string(models.FormatPercentage) {
		return true
	}
	for _, label := range []string{in.MetricName, in.SourceKey, in.MetricKey} {
		for _, w := range keys.Tokens(label) {
			if rateTokens[w] {
				return true
			}
		}
	}
	return false
}

func percentRange(sl validator.StructLevel) {
	in := sl.Current().Interface().(MetricInput)
	if in.CurrentValue == "" || !isRateMetric(in) {
		return
	}
	v := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(in.CurrentValue), "%"))
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
	if err != nil || d.LessThan(decimal.Zero) || d.GreaterThan(decimal.NewFromInt(100)) {
		sl.ReportError(in.CurrentValue, "CurrentValue", "CurrentValue", "percentrange", "")
	}
}

// NewValidator returns a validator with the metric rules registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(percentRange, MetricInput{})
	return v
}

// Validate checks a record and returns a readable error.
func Validate(v *validator.Validate, r models.MetricRecord) error {
	return validate(v, r, "")
}

// ValidateRow checks a record mapped from row, including the key the row
// supplied before alias resolution.
func ValidateRow(v *validator.Validate, row parser.Row, r models.MetricRecord) error {
	return validate(v, r, row.Get(ColMetricKey))
}

func validate(v *validator.Validate, r models.MetricRecord, sourceKey string) error {
	err := v.Struct(inputOf(r, sourceKey))
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe, r))
	}
	sort.Strings(msgs)
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError, r models.MetricRecord) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s %q must be one of [%s]", fe.Field(), fe.Value(), fe.Param())
	case "percentrange":
		return fmt.Sprintf("%s value %q must be a number between 0 and 100", r.MetricKey, r.CurrentValue)
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
