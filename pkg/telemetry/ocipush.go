// Package telemetry optionally publishes kernel health as a custom OCI
// Monitoring metric, for fleets that run the simulated kernel as a
// cloud-hosted digital twin of an embedded deployment. It is wholly
// outside the kernel's CORE: no kernel package calls it. Push runs
// synchronously on the calling goroutine, so a caller that ticks and
// pushes from one loop (as cmd/kerneld does) waits for each publish
// attempt before its next tick.
//
// The publish call is wrapped in a circuit breaker so a prolonged OCI
// outage degrades to "stop trying for a while" instead of piling up
// blocked goroutines behind a slow or down dependency.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	"github.com/oracle/oci-go-sdk/v65/monitoring"
	"github.com/sony/gobreaker"
)

const (
	metricsNamespace  = "tinykernel"
	resourceGroup     = "rtos-digital-twin"
	breakerName       = "oci-telemetry"
	consecutiveTrips  = 3
	openStateDuration = 30 * time.Second
)

var (
	errMissingCompartmentID = errors.New("telemetry: compartment ID is required")
	errMissingPublisher     = errors.New("telemetry: publisher is required")
)

// Health is the snapshot of kernel state published on each call to Push.
type Health struct {
	Utilization     float64
	DeadlineMisses  uint64
	JitterMisses    uint64
	ContextSwitches uint64
	Schedulable     bool
}

type publisher interface {
	PostMetricData(
		ctx context.Context,
		request monitoring.PostMetricDataRequest,
	) (monitoring.PostMetricDataResponse, error)
}

// Publisher pushes Health snapshots to OCI Monitoring, circuit-broken
// against repeated failures.
type Publisher struct {
	client        publisher
	breaker       *gobreaker.CircuitBreaker
	compartmentID string
	resourceID    string
}

// NewInstancePrincipalPublisher constructs a Publisher backed by the OCI
// Go SDK using instance principal authentication.
func NewInstancePrincipalPublisher(compartmentID, resourceID string) (*Publisher, error) {
	if compartmentID == "" {
		return nil, errMissingCompartmentID
	}

	provider, err := auth.InstancePrincipalConfigurationProvider()
	if err != nil {
		return nil, fmt.Errorf("build instance principal provider: %w", err)
	}

	monitoringClient, err := monitoring.NewMonitoringClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("create monitoring client: %w", err)
	}

	return newPublisher(&monitoringClient, compartmentID, resourceID)
}

func newPublisher(client publisher, compartmentID, resourceID string) (*Publisher, error) {
	if client == nil {
		return nil, errMissingPublisher
	}

	if compartmentID == "" {
		return nil, errMissingCompartmentID
	}

	settings := gobreaker.Settings{ //nolint:exhaustruct
		Name: breakerName,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveTrips
		},
		Timeout: openStateDuration,
	}

	return &Publisher{
		client:        client,
		breaker:       gobreaker.NewCircuitBreaker(settings),
		compartmentID: compartmentID,
		resourceID:    resourceID,
	}, nil
}

// Push publishes a Health snapshot as five OCI Monitoring datapoints. A
// tripped breaker returns its own error immediately without calling OCI.
func (p *Publisher) Push(ctx context.Context, health Health, at time.Time) error {
	if p == nil {
		return nil
	}

	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.post(ctx, health, at)
	})
	if err != nil {
		return fmt.Errorf("push telemetry: %w", err)
	}

	return nil
}

func (p *Publisher) post(ctx context.Context, health Health, at time.Time) error {
	timestamp := common.SDKTime{Time: at}

	schedulableValue := 0.0
	if health.Schedulable {
		schedulableValue = 1.0
	}

	details := monitoring.PostMetricDataDetails{
		MetricData: []monitoring.MetricDataDetails{
			p.datapoint("Utilization", health.Utilization, timestamp),
			p.datapoint("DeadlineMisses", float64(health.DeadlineMisses), timestamp),
			p.datapoint("JitterMisses", float64(health.JitterMisses), timestamp),
			p.datapoint("ContextSwitches", float64(health.ContextSwitches), timestamp),
			p.datapoint("Schedulable", schedulableValue, timestamp),
		},
	}

	request := monitoring.PostMetricDataRequest{
		PostMetricDataDetails: details,
	}

	_, err := p.client.PostMetricData(ctx, request)
	if err != nil {
		return fmt.Errorf("post metric data: %w", err)
	}

	return nil
}

func (p *Publisher) datapoint(name string, value float64, at common.SDKTime) monitoring.MetricDataDetails {
	return monitoring.MetricDataDetails{
		Namespace:     common.String(metricsNamespace),
		CompartmentId: common.String(p.compartmentID),
		Name:          common.String(name),
		Dimensions: map[string]string{
			"resourceGroup": resourceGroup,
			"resourceId":    p.resourceID,
		},
		Datapoints: []monitoring.Datapoint{
			{Timestamp: &at, Value: common.Float64(value)},
		},
	}
}
