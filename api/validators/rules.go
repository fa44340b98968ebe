package validators

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/machawaste/wastelink-backend/pkg/enums"
)

var validate = newValidator()

// enumRules adds a tag per domain enumeration so request payloads are
// checked against the same values the database accepts.
var enumRules = map[string]func(string) bool{
	"material_kind": func(v string) bool { return enums.MaterialKind(v).IsValid() },
	"account_type":  func(v string) bool { return enums.AccountType(v).IsValid() },
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "":
			return f.Name
		case "-":
			return ""
		}
		return name
	})
	for tag, valid := range enumRules {
		valid := valid
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	return v
}

func validationMessage(fe validator.FieldError) string {
	if _, ok := enumRules[fe.Tag()]; ok {
		return fmt.Sprintf("must be a known %s", strings.ReplaceAll(fe.Tag(), "_", " "))
	}
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "uuid":
		return "must be a valid uuid"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return "is invalid"
}
