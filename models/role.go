package models

import (
	"regexp"

	"github.com/go-playground/validator"
)

type Role string

const (
	OWNER   Role = "OWNER"
	ADMIN   Role = "ADMIN"
	STYLIST Role = "STYLIST"
)

func (l *Role) Scan(value interface{}) error {
	*l = Role(value.(string))
	return nil
}

func (l Role) Value() (string, error) {
	return string(l), nil
}

func ValidateRole(fl validator.FieldLevel) bool {
	value := fl.Field().String()

	matched, _ := regexp.MatchString("^OWNER|ADMIN|STYLIST$", string(value))
	return matched
}

func ValidateRoleRaw(value string) bool {

	matched, _ := regexp.MatchString("^OWNER|ADMIN|STYLIST$", value)
	return matched
}
