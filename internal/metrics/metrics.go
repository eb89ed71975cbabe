package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)

	// Invitation codes
	InvitationCodesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_codes_generated_total",
			Help: "Invitation codes issued, by granted role",
		},
		[]string{"role"},
	)
	InvitationValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_validations_total",
			Help: "Advisory code validations, by result",
		},
		[]string{"result"},
	)
	InvitationRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invitation_redemptions_total",
			Help: "Conditional-update redemption attempts, by result",
		},
		[]string{"result"},
	)
	ProvisioningFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invitation_provisioning_failures_total",
			Help: "Redeemed codes whose role could not be applied to the profile",
		},
	)
)

// Register adds every collector plus the Go and process collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		InvitationCodesGenerated,
		InvitationValidations,
		InvitationRedemptions,
		ProvisioningFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
