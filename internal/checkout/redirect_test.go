package checkout_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokofresh/mpesa-checkout/internal/checkout"
)

func TestRedirectURLEncodesPaymentDetails(t *testing.T) {
	link := checkout.RedirectURL("254700000000", "Thanks for your order!", 500, "NLJ7RT61SV", "254712345678")

	require.True(t, strings.HasPrefix(link, "https://wa.me/254700000000?text="))

	parsed, err := url.Parse(link)
	require.NoError(t, err)

	message := parsed.Query().Get("text")
	assert.Contains(t, message, "Thanks for your order!")
	assert.Contains(t, message, "KES 500")
	assert.Contains(t, message, "NLJ7RT61SV")
	assert.Contains(t, message, "254712345678")
}

func TestRedirectURLUsesDefaultTemplateWhenEmpty(t *testing.T) {
	link := checkout.RedirectURL("254700000000", "", 250.5, "ABC123", "254712345678")

	parsed, err := url.Parse(link)
	require.NoError(t, err)

	message := parsed.Query().Get("text")
	assert.Contains(t, message, checkout.DefaultMessageTemplate)
	assert.Contains(t, message, "KES 250.5")
}
