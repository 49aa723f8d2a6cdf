// internal/domain/payment/messages.go
package payment

// ErrorMessage maps a provider error code to text a shopper can act on.
// insufficient_funds usually arrives as the decline code of a card_declined error.
func ErrorMessage(code, declineCode string) string {
	if declineCode == "insufficient_funds" {
		code = declineCode
	}
	switch code {
	case "card_declined":
		return "Your card was declined. Please try a different card."
	case "insufficient_funds":
		return "Your card has insufficient funds. Please try a different card."
	case "expired_card":
		return "Your card has expired. Please use a different card."
	case "incorrect_cvc":
		return "Your card's security code is incorrect. Please check and try again."
	case "processing_error":
		return "An error occurred while processing your card. Please try again."
	case "rate_limit":
		return "Too many requests. Please wait a moment and try again."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// Result is the shopper-facing outcome of a confirmation
type Result struct {
	Success bool
	Message string
}

// ResultMessage maps an intent status to an outcome. Only succeeded counts as success.
func ResultMessage(status IntentStatus) Result {
	switch status {
	case IntentStatusSucceeded:
		return Result{Success: true, Message: "Payment successful! Your order has been placed."}
	case IntentStatusProcessing:
		return Result{Message: "Your payment is processing. We'll update you when payment is received."}
	case IntentStatusRequiresPaymentMethod:
		return Result{Message: "Your payment was not successful. Please try another payment method."}
	case IntentStatusRequiresAction:
		return Result{Message: "Additional authentication is required to complete your payment."}
	default:
		return Result{Message: "Something went wrong with your payment. Please try again."}
	}
}
