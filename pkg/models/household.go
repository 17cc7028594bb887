package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Reform identifiers. Each selectable reform has a matching show_<id>
// request flag and a ptc_<id> result array.
const (
	ReformIRA               = "ira"
	Reform700FPL            = "700fpl"
	ReformAdditionalBracket = "additional_bracket"
	ReformSimplifiedBracket = "simplified_bracket"
)

// MaxDependents is the largest number of dependents a request may carry.
const MaxDependents = 10

// StateNames maps two-letter codes to state names. It doubles as the set of
// valid state codes.
var StateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia",
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("statecode", func(fl validator.FieldLevel) bool {
		_, ok := StateNames[fl.Field().String()]
		return ok
	})
}

// CalculationRequest describes a household and the reforms to compare
// against the baseline. The order of DependentAges is significant.
type CalculationRequest struct {
	AgeHead       int     `json:"age_head" validate:"gte=18,lte=100"`
	AgeSpouse     *int    `json:"age_spouse" validate:"omitempty,gte=18,lte=100"`
	DependentAges []int   `json:"dependent_ages" validate:"max=10,dive,gte=0,lte=25"`
	State         string  `json:"state" validate:"statecode"`
	County        string  `json:"county" validate:"required"`
	ZipCode       *string `json:"zip_code" validate:"omitempty,numeric,len=5"`

	ShowIRA               bool `json:"show_ira"`
	Show700FPL            bool `json:"show_700fpl"`
	ShowAdditionalBracket bool `json:"show_additional_bracket"`
	ShowSimplifiedBracket bool `json:"show_simplified_bracket"`
}

// NewCalculationRequest returns a request carrying the default reform
// selection. Decode JSON bodies into it so omitted flags keep their defaults.
func NewCalculationRequest() CalculationRequest {
	return CalculationRequest{ShowIRA: true}
}

// Selected reports whether the named reform was requested.
func (r *CalculationRequest) Selected(reformID string) bool {
	switch reformID {
	case ReformIRA:
		return r.ShowIRA
	case Reform700FPL:
		return r.Show700FPL
	case ReformAdditionalBracket:
		return r.ShowAdditionalBracket
	case ReformSimplifiedBracket:
		return r.ShowSimplifiedBracket
	}
	return false
}

// Select sets the selection flag for the named reform. Unknown ids are ignored.
func (r *CalculationRequest) Select(reformID string, on bool) {
	switch reformID {
	case ReformIRA:
		r.ShowIRA = on
	case Reform700FPL:
		r.Show700FPL = on
	case ReformAdditionalBracket:
		r.ShowAdditionalBracket = on
	case ReformSimplifiedBracket:
		r.ShowSimplifiedBracket = on
	}
}

// Validate checks field ranges and returns a *ValidationError on failure.
func (r *CalculationRequest) Validate() error {
	return validateStruct(r)
}

// ValidationError lists field-level problems with a request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Fields, "; ")
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []string{err.Error()}}
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, describeField(fe))
	}
	return ve
}

func describeField(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s supports at most %s entries", field, fe.Param())
	case "statecode":
		return fmt.Sprintf("invalid state code: %v", fe.Value())
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "numeric", "len":
		return fmt.Sprintf("%s must be a 5-digit ZIP code", field)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
