// Package checkout implements the client side of the payment flow: a
// payment session, the gateway client for the payments API and the
// status poller that drives a session from initiated to a terminal
// state.
package checkout

import (
	"github.com/sokofresh/mpesa-checkout/internal/core/common/validation"
)

// ValidateInput checks phone and amount against the local contracts.
// Callers must not issue the initiate call when this fails.
func ValidateInput(phone string, amount float64) error {
	if appErr := validation.ValidatePhone(phone); appErr != nil {
		return appErr
	}
	if appErr := validation.ValidateAmount(amount); appErr != nil {
		return appErr
	}
	return nil
}
