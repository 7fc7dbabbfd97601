package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground validation with webhook-specific rules.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	return &Validator{v: v}
}

// Validate checks struct tags and returns a flattened error message.
func (val *Validator) Validate(obj interface{}) error {
	err := val.v.Struct(obj)
	if err == nil {
		return nil
	}
	if errs, ok := err.(validator.ValidationErrors); ok {
		msgs := make([]string, 0, len(errs))
		for _, fe := range errs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return err
}

// ValidateEventTypes checks a subscription set against the allowed list.
func ValidateEventTypes(events, valid []string) []string {
	allowed := make(map[string]struct{}, len(valid))
	for _, e := range valid {
		allowed[e] = struct{}{}
	}
	var invalid []string
	for _, e := range events {
		if _, ok := allowed[e]; !ok {
			invalid = append(invalid, e)
		}
	}
	return invalid
}
