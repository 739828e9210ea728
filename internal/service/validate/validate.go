package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/affiliate/internal/models"
)

// New returns validator that reports fields by json names and knows 'money' tag
// 'money' is a positive decimal with at most 2 fraction digits
func New() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(useJSONTagNames)
	v.RegisterCustomTypeFunc(decimalToString, decimal.Decimal{})
	_ = v.RegisterValidation("money", validateMoney)

	return v
}

func useJSONTagNames(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	// skip if tag key says it should be ignored
	if name == "-" {
		return ""
	}
	return name
}

// Validator can't look into decimal.Decimal, so it sees its exact string form
func decimalToString(field reflect.Value) any {
	d, ok := field.Interface().(decimal.Decimal)
	if !ok {
		return nil
	}
	return d.String()
}

func validateMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}

	return models.IsMoney(d)
}
