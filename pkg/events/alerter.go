package events

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gantryhq/gantry/pkg/types"
)

// Alerter receives notable certificate and cluster conditions.
// Delivery (email, webhooks) lives outside the core; the default
// implementation publishes onto the event broker.
type Alerter interface {
	CertificateExpiringSoon(cert *types.Certificate, daysLeft int)
	CertificateExpired(cert *types.Certificate)
	CertificateIssued(cert *types.Certificate)
	RenewalFailure(domains []string, cause error)
	NodeDown(node *types.ClusterNode)
	NodeJoined(node *types.ClusterNode)
	NodeLeft(node *types.ClusterNode)
	LeaderChanged(instanceID string, isLeader bool)
}

// BrokerAlerter is the default Alerter: each alert becomes an event
type BrokerAlerter struct {
	broker *Broker
}

// NewBrokerAlerter wires alerts onto the given broker
func NewBrokerAlerter(broker *Broker) *BrokerAlerter {
	return &BrokerAlerter{broker: broker}
}

func (a *BrokerAlerter) CertificateExpiringSoon(cert *types.Certificate, daysLeft int) {
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventCertExpiringSoon,
		Message: fmt.Sprintf("certificate for %s expires in %d days", cert.Domains, daysLeft),
		Metadata: map[string]string{
			"cert_id": cert.ID,
			"domains": cert.Domains,
			"days":    fmt.Sprintf("%d", daysLeft),
		},
	})
}

func (a *BrokerAlerter) CertificateExpired(cert *types.Certificate) {
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventCertExpired,
		Message: fmt.Sprintf("certificate for %s has expired", cert.Domains),
		Metadata: map[string]string{
			"cert_id": cert.ID,
			"domains": cert.Domains,
		},
	})
}

func (a *BrokerAlerter) CertificateIssued(cert *types.Certificate) {
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventCertIssued,
		Message: fmt.Sprintf("certificate issued for %s", cert.Domains),
		Metadata: map[string]string{
			"cert_id": cert.ID,
			"domains": cert.Domains,
		},
	})
}

func (a *BrokerAlerter) RenewalFailure(domains []string, cause error) {
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventCertRenewalFailure,
		Message: fmt.Sprintf("renewal failed for %s: %v", strings.Join(domains, ";"), cause),
		Metadata: map[string]string{
			"domains": strings.Join(domains, ";"),
			"error":   cause.Error(),
		},
	})
}

func (a *BrokerAlerter) NodeDown(node *types.ClusterNode) {
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventNodeDown,
		Message: fmt.Sprintf("cluster node %s is down", node.InstanceID),
		Metadata: map[string]string{
			"instance_id": node.InstanceID,
			"hostname":    node.Hostname,
		},
	})
}

func (a *BrokerAlerter) NodeJoined(node *types.ClusterNode) {
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventNodeJoined,
		Message: fmt.Sprintf("cluster node %s joined", node.InstanceID),
		Metadata: map[string]string{
			"instance_id": node.InstanceID,
			"hostname":    node.Hostname,
		},
	})
}

func (a *BrokerAlerter) NodeLeft(node *types.ClusterNode) {
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventNodeLeft,
		Message: fmt.Sprintf("cluster node %s left", node.InstanceID),
		Metadata: map[string]string{
			"instance_id": node.InstanceID,
			"hostname":    node.Hostname,
		},
	})
}

func (a *BrokerAlerter) LeaderChanged(instanceID string, isLeader bool) {
	msg := fmt.Sprintf("node %s lost leadership", instanceID)
	if isLeader {
		msg = fmt.Sprintf("node %s became leader", instanceID)
	}
	a.broker.Publish(&Event{
		ID:      uuid.New().String(),
		Type:    EventLeaderChanged,
		Message: msg,
		Metadata: map[string]string{
			"instance_id": instanceID,
			"is_leader":   strconv.FormatBool(isLeader),
		},
	})
}
