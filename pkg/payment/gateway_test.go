package payment

import (
	"testing"

	"github.com/telecare-health/platform/pkg/common/apperrors"
)

func TestVerifySignature(t *testing.T) {
	g := &RazorpayGateway{keySecret: "test-secret"}

	good := signFor("test-secret", "order_1", "pay_1")
	if err := g.VerifySignature("order_1", "pay_1", good); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	if err := g.VerifySignature("order_1", "pay_1", "deadbeef"); apperrors.KindOf(err) != apperrors.KindSignatureMismatch {
		t.Fatalf("expected signature mismatch, got %v", err)
	}

	// signature over different payment id must not transfer
	if err := g.VerifySignature("order_1", "pay_2", good); apperrors.KindOf(err) != apperrors.KindSignatureMismatch {
		t.Fatalf("expected signature mismatch for foreign payment id, got %v", err)
	}
}
