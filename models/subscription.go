package models

import (
	"regexp"

	"github.com/go-playground/validator"
)

type Subscription string

const (
	Free   Subscription = "free" // 2 clothes, 2 generations total
	Trial  Subscription = "trial"
	Pro    Subscription = "pro"
	Studio Subscription = "studio" // team closets, enforced limits lifted
)

func (l *Subscription) Scan(value interface{}) error {
	*l = Subscription(value.(string))
	return nil
}

func (l Subscription) Value() (string, error) {
	return string(l), nil
}

func ValidateSubscription(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	matched, _ := regexp.MatchString("^free|trial|pro|studio$", string(value))
	return matched
}

func ValidateSubscriptionRaw(value string) bool {
	matched, _ := regexp.MatchString("^free|trial|pro|studio$", string(value))
	return matched
}
