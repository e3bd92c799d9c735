package engine

import (
	"context"
	"fmt"

	"github.com/picklr-io/stackup/internal/ir"
	"github.com/picklr-io/stackup/pkg/cloud"
)

// Step names of the fixed topology.
const (
	StepNetwork               = "network"
	StepSubnet                = "subnet"
	StepGateway               = "gateway"
	StepGatewayAttachment     = "gateway-attachment"
	StepRouteTable            = "route-table"
	StepDefaultRoute          = "default-route"
	StepRouteTableAssociation = "route-table-association"
	StepSSHGroup              = "ssh-group"
	StepSSHIngress            = "ssh-ingress"
	StepHTTPGroup             = "http-group"
	StepHTTPRules             = "http-rules"
	StepInstance              = "instance"
)

// CreateFunc performs a step against the provider. Steps that create a
// resource return it; configuration steps (routes, rules, attachments)
// return nil.
type CreateFunc func(ctx context.Context, sc *StepContext) (*cloud.Resource, error)

// Step is a declarative unit of provisioning work.
type Step struct {
	Name      string
	Kind      cloud.Kind // kind of resource produced, empty for configuration steps
	DependsOn []string
	Create    CreateFunc
}

// Plan is the step graph for one stack.
type Plan struct {
	Stack string
	Tags  map[string]string // applied to every resource
	Steps []*Step
}

// StepContext is handed to a step's CreateFunc.
type StepContext struct {
	Cloud cloud.Provider
	step  string
	refs  map[string]string
	tags  map[string]string
}

// Ref returns the resource ID produced by a dependency of the current step.
func (sc *StepContext) Ref(step string) (string, error) {
	id, ok := sc.refs[step]
	if !ok || id == "" {
		return "", fmt.Errorf("step %s has no resource from dependency %q", sc.step, step)
	}
	return id, nil
}

// Tags returns the run tags plus a Name tag.
func (sc *StepContext) Tags(name string) map[string]string {
	if name == "" {
		return cloud.MergeTags(sc.tags, nil)
	}
	return cloud.MergeTags(sc.tags, map[string]string{cloud.TagName: name})
}

// Resource builds the record for a resource created by the current step.
func (sc *StepContext) Resource(kind cloud.Kind, id string, tags, attrs map[string]string) *cloud.Resource {
	res := cloud.NewResource(kind, id, sc.step, tags, attrs)
	return &res
}

// BuildPlan returns the fixed network + instance topology for cfg. cfg must
// have defaults applied. userData is passed to the instance untouched.
func BuildPlan(cfg *ir.Config, userData []byte) *Plan {
	n := cfg.Network
	inst := cfg.Instance

	return &Plan{
		Stack: cfg.Stack,
		Tags:  cloud.MergeTags(cfg.Tags, map[string]string{cloud.TagStack: cfg.Stack}),
		Steps: []*Step{
			{
				Name: StepNetwork,
				Kind: cloud.KindNetwork,
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					tags := sc.Tags(n.NetworkName)
					id, err := sc.Cloud.CreateNetwork(ctx, n.CidrBlock, tags)
					if err != nil {
						return nil, err
					}
					return sc.Resource(cloud.KindNetwork, id, tags, nil), nil
				},
			},
			{
				Name:      StepSubnet,
				Kind:      cloud.KindSubnet,
				DependsOn: []string{StepNetwork},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					networkID, err := sc.Ref(StepNetwork)
					if err != nil {
						return nil, err
					}
					tags := sc.Tags(n.SubnetName)
					id, err := sc.Cloud.CreateSubnet(ctx, cloud.SubnetSpec{
						NetworkID:        networkID,
						CidrBlock:        n.SubnetCidrBlock,
						AvailabilityZone: n.AvailabilityZone,
						Tags:             tags,
					})
					if err != nil {
						return nil, err
					}
					return sc.Resource(cloud.KindSubnet, id, tags, map[string]string{cloud.AttrNetworkID: networkID}), nil
				},
			},
			{
				Name:      StepGateway,
				Kind:      cloud.KindGateway,
				DependsOn: []string{StepNetwork},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					networkID, err := sc.Ref(StepNetwork)
					if err != nil {
						return nil, err
					}
					tags := sc.Tags(n.GatewayName)
					id, err := sc.Cloud.CreateGateway(ctx, tags)
					if err != nil {
						return nil, err
					}
					// The attachment target is recorded up front so rollback
					// always attempts the detach.
					return sc.Resource(cloud.KindGateway, id, tags, map[string]string{cloud.AttrNetworkID: networkID}), nil
				},
			},
			{
				Name:      StepGatewayAttachment,
				DependsOn: []string{StepGateway, StepNetwork},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					gatewayID, err := sc.Ref(StepGateway)
					if err != nil {
						return nil, err
					}
					networkID, err := sc.Ref(StepNetwork)
					if err != nil {
						return nil, err
					}
					return nil, sc.Cloud.AttachGateway(ctx, gatewayID, networkID)
				},
			},
			{
				Name:      StepRouteTable,
				Kind:      cloud.KindRouteTable,
				DependsOn: []string{StepNetwork, StepGatewayAttachment},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					networkID, err := sc.Ref(StepNetwork)
					if err != nil {
						return nil, err
					}
					tags := sc.Tags(n.RouteTableName)
					id, err := sc.Cloud.CreateRouteTable(ctx, networkID, tags)
					if err != nil {
						return nil, err
					}
					return sc.Resource(cloud.KindRouteTable, id, tags, map[string]string{cloud.AttrNetworkID: networkID}), nil
				},
			},
			{
				Name:      StepDefaultRoute,
				DependsOn: []string{StepRouteTable, StepGateway},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					routeTableID, err := sc.Ref(StepRouteTable)
					if err != nil {
						return nil, err
					}
					gatewayID, err := sc.Ref(StepGateway)
					if err != nil {
						return nil, err
					}
					return nil, sc.Cloud.CreateRoute(ctx, routeTableID, ir.DefaultOpenCidr, gatewayID)
				},
			},
			{
				Name:      StepRouteTableAssociation,
				DependsOn: []string{StepRouteTable, StepSubnet},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					routeTableID, err := sc.Ref(StepRouteTable)
					if err != nil {
						return nil, err
					}
					subnetID, err := sc.Ref(StepSubnet)
					if err != nil {
						return nil, err
					}
					_, err = sc.Cloud.AssociateRouteTable(ctx, routeTableID, subnetID)
					return nil, err
				},
			},
			securityGroupStep(StepSSHGroup, cloud.SecurityGroupSpec{
				Name:        "ssh-ingress",
				Description: "Allow inbound SSH traffic",
			}, n.SSHGroupName),
			{
				Name:      StepSSHIngress,
				DependsOn: []string{StepSSHGroup},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					groupID, err := sc.Ref(StepSSHGroup)
					if err != nil {
						return nil, err
					}
					return nil, sc.Cloud.AuthorizeIngress(ctx, groupID, cloud.Rule{Protocol: "tcp", FromPort: 22, ToPort: 22, CidrIP: n.SSHCidr})
				},
			},
			securityGroupStep(StepHTTPGroup, cloud.SecurityGroupSpec{
				Name:        "allow-http-traffic",
				Description: "Allow HTTP traffic",
			}, n.HTTPGroupName),
			{
				Name:      StepHTTPRules,
				DependsOn: []string{StepHTTPGroup},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					groupID, err := sc.Ref(StepHTTPGroup)
					if err != nil {
						return nil, err
					}
					rule := cloud.Rule{Protocol: "tcp", FromPort: 80, ToPort: 80, CidrIP: n.HTTPCidr}
					if err := sc.Cloud.AuthorizeEgress(ctx, groupID, rule); err != nil {
						return nil, fmt.Errorf("egress: %w", err)
					}
					if err := sc.Cloud.AuthorizeIngress(ctx, groupID, rule); err != nil {
						return nil, fmt.Errorf("ingress: %w", err)
					}
					return nil, nil
				},
			},
			{
				Name: StepInstance,
				Kind: cloud.KindInstance,
				DependsOn: []string{
					StepSubnet, StepSSHGroup, StepHTTPGroup,
					StepSSHIngress, StepHTTPRules, StepDefaultRoute, StepRouteTableAssociation,
				},
				Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
					subnetID, err := sc.Ref(StepSubnet)
					if err != nil {
						return nil, err
					}
					sshGroupID, err := sc.Ref(StepSSHGroup)
					if err != nil {
						return nil, err
					}
					httpGroupID, err := sc.Ref(StepHTTPGroup)
					if err != nil {
						return nil, err
					}
					tags := sc.Tags(inst.Name)
					id, err := sc.Cloud.CreateInstance(ctx, cloud.InstanceSpec{
						ImageID:           inst.ImageID,
						InstanceType:      inst.InstanceType,
						KeyName:           inst.KeyName,
						SubnetID:          subnetID,
						SecurityGroupIDs:  []string{sshGroupID, httpGroupID},
						UserData:          userData,
						AssociatePublicIP: inst.PublicIPOnLaunch(),
						Tags:              tags,
					})
					if err != nil {
						return nil, err
					}
					return sc.Resource(cloud.KindInstance, id, tags, nil), nil
				},
			},
		},
	}
}

func securityGroupStep(name string, spec cloud.SecurityGroupSpec, nameTag string) *Step {
	return &Step{
		Name:      name,
		Kind:      cloud.KindSecurityGroup,
		DependsOn: []string{StepNetwork},
		Create: func(ctx context.Context, sc *StepContext) (*cloud.Resource, error) {
			networkID, err := sc.Ref(StepNetwork)
			if err != nil {
				return nil, err
			}
			spec.NetworkID = networkID
			spec.Tags = sc.Tags(nameTag)
			id, err := sc.Cloud.CreateSecurityGroup(ctx, spec)
			if err != nil {
				return nil, err
			}
			return sc.Resource(cloud.KindSecurityGroup, id, spec.Tags, map[string]string{cloud.AttrNetworkID: networkID}), nil
		},
	}
}
