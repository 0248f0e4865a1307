package checkout

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultMessageTemplate opens the WhatsApp conversation after a
// successful payment. Overridable through configuration.
const DefaultMessageTemplate = "Hi, I've just paid for the kombucha order."

// RedirectURL builds the wa.me link opened after a successful payment.
// waPhone is the merchant WhatsApp number in international format
// without the plus sign.
func RedirectURL(waPhone, template string, amount float64, transactionCode, payerPhone string) string {
	if template == "" {
		template = DefaultMessageTemplate
	}

	message := fmt.Sprintf("%s\nAmount: KES %s\nTransaction Code: %s\nPhone: %s",
		template,
		strconv.FormatFloat(amount, 'f', -1, 64),
		transactionCode,
		payerPhone,
	)

	return "https://wa.me/" + waPhone + "?text=" + url.QueryEscape(message)
}
