package finance

import (
	"github.com/Knetic/govaluate"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core"
)

var (
	payMethodTag  = "paymethod"
	payMethodText = "invalid payment method"

	formulaTag  = "formula"
	formulaText = "invalid installment formula"
)

// InitValidators registers the finance validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(payMethodTag, payMethodValidation)
	core.RegisterCustomTranslation(validate, translator, payMethodTag, payMethodText)

	_ = validate.RegisterValidation(formulaTag, formulaValidation)
	core.RegisterCustomTranslation(validate, translator, formulaTag, formulaText)
}

func payMethodValidation(fl validator.FieldLevel) bool {
	method := PaymentMethod(fl.Field().String())
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// formulaValidation only checks the syntax, evaluation errors are reported by GenerateSchedule.
func formulaValidation(fl validator.FieldLevel) bool {
	_, err := govaluate.NewEvaluableExpression(fl.Field().String())
	return err == nil
}
