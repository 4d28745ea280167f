package dto

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Channel addresses are either phone numbers (E.164-ish, separators allowed)
// or web site keys (lowercase slugs). Anything else is a provisioning typo
// caught at the edge before it pollutes the directory.
var (
	phoneAddressPattern = regexp.MustCompile(`^\+?[0-9][0-9 .()-]{4,}[0-9]$`)
	siteKeyPattern      = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,99}$`)
)

// RegisterValidators installs the gateway's custom binding validators on
// gin's validator engine. Call once at startup, before routes are served.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("channel_address", validateChannelAddress)
}

func validateChannelAddress(fl validator.FieldLevel) bool {
	address := strings.TrimSpace(fl.Field().String())
	if address == "" {
		return false
	}
	return phoneAddressPattern.MatchString(address) ||
		siteKeyPattern.MatchString(strings.ToLower(address))
}
