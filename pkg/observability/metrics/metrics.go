package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	consultationsClaimed  atomic.Int64
	claimConflicts        atomic.Int64
	consultationsComplete atomic.Int64
	paymentsSettled       atomic.Int64
	settlementReplays     atomic.Int64
	signatureFailures     atomic.Int64
	stockFailures         atomic.Int64
	chargesRebuilt        atomic.Int64
)

func Init() {}

func ObserveClaim(success bool) {
	if success {
		consultationsClaimed.Add(1)
	} else {
		claimConflicts.Add(1)
	}
}

func ObserveCompletion()       { consultationsComplete.Add(1) }
func ObserveSettlement()       { paymentsSettled.Add(1) }
func ObserveSettlementReplay() { settlementReplays.Add(1) }
func ObserveSignatureFailure() { signatureFailures.Add(1) }
func ObserveStockFailure()     { stockFailures.Add(1) }
func ObserveChargeRebuild()    { chargesRebuilt.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP telecare_consultations_claimed_total Consultations successfully claimed by a doctor.\n")
	fmt.Fprintf(w, "# TYPE telecare_consultations_claimed_total counter\n")
	fmt.Fprintf(w, "telecare_consultations_claimed_total %d\n", consultationsClaimed.Load())

	fmt.Fprintf(w, "# HELP telecare_claim_conflicts_total Claim attempts rejected because the consultation was taken or not ready.\n")
	fmt.Fprintf(w, "# TYPE telecare_claim_conflicts_total counter\n")
	fmt.Fprintf(w, "telecare_claim_conflicts_total %d\n", claimConflicts.Load())

	fmt.Fprintf(w, "# HELP telecare_consultations_completed_total Consultations marked complete.\n")
	fmt.Fprintf(w, "# TYPE telecare_consultations_completed_total counter\n")
	fmt.Fprintf(w, "telecare_consultations_completed_total %d\n", consultationsComplete.Load())

	fmt.Fprintf(w, "# HELP telecare_payments_settled_total Payments settled across both tracks and channels.\n")
	fmt.Fprintf(w, "# TYPE telecare_payments_settled_total counter\n")
	fmt.Fprintf(w, "telecare_payments_settled_total %d\n", paymentsSettled.Load())

	fmt.Fprintf(w, "# HELP telecare_settlement_replays_total Settlement callbacks received for an already-completed payment.\n")
	fmt.Fprintf(w, "# TYPE telecare_settlement_replays_total counter\n")
	fmt.Fprintf(w, "telecare_settlement_replays_total %d\n", settlementReplays.Load())

	fmt.Fprintf(w, "# HELP telecare_signature_failures_total Gateway callbacks rejected for a bad signature.\n")
	fmt.Fprintf(w, "# TYPE telecare_signature_failures_total counter\n")
	fmt.Fprintf(w, "telecare_signature_failures_total %d\n", signatureFailures.Load())

	fmt.Fprintf(w, "# HELP telecare_stock_failures_total Settlements rejected for insufficient stock.\n")
	fmt.Fprintf(w, "# TYPE telecare_stock_failures_total counter\n")
	fmt.Fprintf(w, "telecare_stock_failures_total %d\n", stockFailures.Load())

	fmt.Fprintf(w, "# HELP telecare_charges_rebuilt_total Prescription charges built or rebuilt.\n")
	fmt.Fprintf(w, "# TYPE telecare_charges_rebuilt_total counter\n")
	fmt.Fprintf(w, "telecare_charges_rebuilt_total %d\n", chargesRebuilt.Load())
}
