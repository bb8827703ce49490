package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// newValidator создает валидатор, понимающий decimal.Decimal и json-имена полей
func newValidator() *validator.Validate {
	v := validator.New()

	// В сообщениях используем имена полей из JSON
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	// decimal.Decimal проверяется как число
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// validateStruct валидирует DTO и переводит ошибки в ValidationError
func validateStruct(v *validator.Validate, dto interface{}) error {
	err := v.Struct(dto)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return newValidationError(err.Error())
	}

	var errorMessages []string
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			errorMessages = append(errorMessages, "поле "+e.Field()+" обязательно")
		case "gt":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть больше "+e.Param())
		case "gte":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть не меньше "+e.Param())
		case "min":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно содержать минимум "+e.Param()+" символов")
		case "max":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно содержать максимум "+e.Param()+" символов")
		case "len":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно содержать ровно "+e.Param()+" элемента")
		case "email":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть корректным email")
		case "oneof":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть одним из: "+e.Param())
		case "uuid":
			errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть UUID")
		default:
			errorMessages = append(errorMessages, "поле "+e.Field()+" заполнено неверно")
		}
	}
	return newValidationError(errorMessages...)
}
