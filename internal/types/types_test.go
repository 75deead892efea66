package types

import (
	"testing"
)

func TestGradeIsValid(t *testing.T) {
	valid := []Grade{GradePass, GradeMerit, GradeDistinction}
	for _, g := range valid {
		if !g.IsValid() {
			t.Errorf("expected %s to be valid", g)
		}
	}

	invalid := []Grade{"", "GOLD", "pass"}
	for _, g := range invalid {
		if g.IsValid() {
			t.Errorf("expected %q to be invalid", g)
		}
	}
}

func TestPaymentStatusIsTerminal(t *testing.T) {
	if PaymentWaiting.IsTerminal() {
		t.Error("WAITING_PAYMENT must not be terminal")
	}

	terminal := []PaymentStatus{PaymentPaid, PaymentRejected, PaymentExpired, PaymentCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
}

func TestPaymentMethodIsValid(t *testing.T) {
	if !MethodBankTransfer.IsValid() || !MethodCardTransfer.IsValid() {
		t.Error("known payment methods must be valid")
	}
	if PaymentMethod("paypal").IsValid() {
		t.Error("unknown payment method must be invalid")
	}
}

func TestServiceErrorMessage(t *testing.T) {
	err := &ServiceError{Code: "CONFLICT", Message: "already pending"}
	if err.Error() != "already pending" {
		t.Errorf("unexpected error string: %s", err.Error())
	}
}
