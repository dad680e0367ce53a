package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var (
	coinTypes     = []string{"BRANDED", "UNIVERSAL", "PROMO"}
	campaignTypes = []string{"PURCHASE", "BRAND", "PRODUCT", "SEASONAL", "REFERRAL", "FIRST_ORDER"}
	userSegments  = []string{"new", "vip"}
)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("coin_type", oneOf(coinTypes))
	validate.RegisterValidation("campaign_type", oneOf(campaignTypes))

	// Empty segment means every user qualifies.
	validate.RegisterValidation("user_segment", oneOf(append([]string{""}, userSegments...)))
}

func oneOf(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range verrs {
		field := err.Field()
		switch err.Tag() {
		case "required", "required_if":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid":
			errors[field] = "Must be a valid UUID"
		case "coin_type":
			errors[field] = "Invalid coin type. Must be: " + strings.Join(coinTypes, ", ")
		case "campaign_type":
			errors[field] = "Invalid campaign type. Must be: " + strings.Join(campaignTypes, ", ")
		case "user_segment":
			errors[field] = "Invalid user segment. Must be: " + strings.Join(userSegments, " or ")
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
