package internaldefs

import (
	rideAuth "github.com/MrEthical07/rideAuth"
)

// CounterDef names one controller counter for exporters.
type CounterDef struct {
	ID   rideAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one controller histogram for exporters.
type HistogramDef struct {
	ID   rideAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: rideAuth.MetricSignInSuccess, Name: "rideauth_sign_in_success_total", Help: "Sign-ins that reached success."},
	{ID: rideAuth.MetricSignInFailure, Name: "rideauth_sign_in_failure_total", Help: "Sign-ins rejected by the identity backend."},
	{ID: rideAuth.MetricSignInUnverified, Name: "rideauth_sign_in_unverified_total", Help: "Sign-ins bounced for an unverified email."},
	{ID: rideAuth.MetricSignUpSuccess, Name: "rideauth_sign_up_success_total", Help: "Completed sign-ups."},
	{ID: rideAuth.MetricSignUpFailure, Name: "rideauth_sign_up_failure_total", Help: "Sign-ups that failed after dispatch."},
	{ID: rideAuth.MetricValidationRejected, Name: "rideauth_validation_rejected_total", Help: "Operations stopped by local input validation."},
	{ID: rideAuth.MetricFederatedInitiated, Name: "rideauth_federated_initiated_total", Help: "Federated account picker launches."},
	{ID: rideAuth.MetricFederatedSelected, Name: "rideauth_federated_selected_total", Help: "Accounts chosen in the federated picker."},
	{ID: rideAuth.MetricFederatedFailure, Name: "rideauth_federated_failure_total", Help: "Federated picker failures and cancellations."},
	{ID: rideAuth.MetricSignOut, Name: "rideauth_sign_out_total", Help: "Sign-outs issued to the identity backend."},
	{ID: rideAuth.MetricBusyRejected, Name: "rideauth_busy_rejected_total", Help: "Operations rejected while another was in flight."},
	{ID: rideAuth.MetricCleanupFailure, Name: "rideauth_cleanup_failure_total", Help: "Ignored best-effort sign-out failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: rideAuth.MetricBackendLatency, Name: "rideauth_backend_latency_seconds", Help: "Latency of identity backend calls."},
}

// Audit drop counter.
const (
	AuditDroppedName = "rideauth_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// HistogramBounds are the bucket labels, matching the controller's buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// bucket is implicit +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix are the bounds rendered safe for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling the tail.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
