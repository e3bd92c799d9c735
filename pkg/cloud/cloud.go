// Package cloud defines the narrow provider surface the provisioning engine
// consumes: network, security and compute primitives plus the resource and
// instance types exchanged across it.
package cloud

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the referenced resource does not exist
	// (or, for detach calls, is not attached).
	ErrNotFound = errors.New("resource not found")

	// ErrDependencyViolation is returned when a delete is rejected because
	// another resource still references the target.
	ErrDependencyViolation = errors.New("dependency violation")
)

// Tag keys applied to every resource created by a run.
const (
	TagName  = "Name"
	TagStack = "stackup:stack"
	TagRun   = "stackup:run"
)

// SubnetSpec describes a subnet to carve out of a network.
type SubnetSpec struct {
	NetworkID        string
	CidrBlock        string
	AvailabilityZone string
	Tags             map[string]string
}

// SecurityGroupSpec describes a security group inside a network.
type SecurityGroupSpec struct {
	Name        string
	Description string
	NetworkID   string
	Tags        map[string]string
}

// Rule is a single tcp/udp permission on a security group.
type Rule struct {
	Protocol string
	FromPort int
	ToPort   int
	CidrIP   string
}

// InstanceSpec holds the launch parameters of the compute instance.
type InstanceSpec struct {
	ImageID           string
	InstanceType      string
	KeyName           string
	SubnetID          string
	SecurityGroupIDs  []string
	UserData          []byte
	AssociatePublicIP bool
	Tags              map[string]string
}

// InstanceState is the provider-reported lifecycle state of an instance.
type InstanceState string

const (
	InstancePending      InstanceState = "pending"
	InstanceRunning      InstanceState = "running"
	InstanceShuttingDown InstanceState = "shutting-down"
	InstanceTerminated   InstanceState = "terminated"
	InstanceStopping     InstanceState = "stopping"
	InstanceStopped      InstanceState = "stopped"
)

// Instance is a point-in-time description of a compute instance.
type Instance struct {
	ID        string
	State     InstanceState
	PublicIP  string
	PrivateIP string
}

// NetworkManager covers network primitives.
type NetworkManager interface {
	CreateNetwork(ctx context.Context, cidrBlock string, tags map[string]string) (string, error)
	DeleteNetwork(ctx context.Context, id string) error

	CreateSubnet(ctx context.Context, spec SubnetSpec) (string, error)
	DeleteSubnet(ctx context.Context, id string) error

	CreateGateway(ctx context.Context, tags map[string]string) (string, error)
	AttachGateway(ctx context.Context, gatewayID, networkID string) error
	// DetachGateway returns ErrNotFound when the gateway is not attached.
	DetachGateway(ctx context.Context, gatewayID, networkID string) error
	DeleteGateway(ctx context.Context, id string) error

	CreateRouteTable(ctx context.Context, networkID string, tags map[string]string) (string, error)
	CreateRoute(ctx context.Context, routeTableID, destinationCidr, gatewayID string) error
	AssociateRouteTable(ctx context.Context, routeTableID, subnetID string) (string, error)
	// DeleteRouteTable removes explicit subnet associations before deleting the table.
	DeleteRouteTable(ctx context.Context, id string) error
}

// SecurityManager covers security group primitives.
type SecurityManager interface {
	CreateSecurityGroup(ctx context.Context, spec SecurityGroupSpec) (string, error)
	AuthorizeIngress(ctx context.Context, groupID string, rule Rule) error
	AuthorizeEgress(ctx context.Context, groupID string, rule Rule) error
	DeleteSecurityGroup(ctx context.Context, id string) error
}

// ComputeManager covers instance primitives.
type ComputeManager interface {
	CreateInstance(ctx context.Context, spec InstanceSpec) (string, error)
	DescribeInstance(ctx context.Context, id string) (*Instance, error)
	TerminateInstance(ctx context.Context, id string) error
}

// Provider combines all primitives the engine needs.
type Provider interface {
	NetworkManager
	SecurityManager
	ComputeManager
}

// Discoverer is implemented by providers that can list the resources
// belonging to a stack, in creation order.
type Discoverer interface {
	Discover(ctx context.Context, stack string) ([]Resource, error)
}
