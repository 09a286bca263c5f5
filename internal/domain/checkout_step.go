package domain

import "fmt"

type CheckoutStep string

const (
	StepAddress  CheckoutStep = "address"
	StepDelivery CheckoutStep = "delivery"
	StepPayment  CheckoutStep = "payment"
	StepReview   CheckoutStep = "review"
	StepComplete CheckoutStep = "complete"
)

var CheckoutSteps = []CheckoutStep{StepAddress, StepDelivery, StepPayment, StepReview, StepComplete}

func (s CheckoutStep) Index() int {
	for i, step := range CheckoutSteps {
		if step == s {
			return i
		}
	}
	return -1
}

func ParseCheckoutStep(v string) (CheckoutStep, error) {
	s := CheckoutStep(v)
	if s.Index() < 0 {
		return "", fmt.Errorf("unknown checkout step %q", v)
	}
	return s, nil
}

// String representation (for logging)
func (s CheckoutStep) String() string {
	return string(s)
}
