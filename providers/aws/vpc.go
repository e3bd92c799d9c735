package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/picklr-io/stackup/internal/logging"
	"github.com/picklr-io/stackup/pkg/cloud"
)

func (p *Provider) CreateNetwork(ctx context.Context, cidrBlock string, tags map[string]string) (string, error) {
	resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         aws.String(cidrBlock),
		TagSpecifications: tagSpecs(types.ResourceTypeVpc, tags),
	})
	if err != nil {
		return "", mapError("create VPC", err)
	}
	return aws.ToString(resp.Vpc.VpcId), nil
}

func (p *Provider) DeleteNetwork(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(id)})
	return mapError("delete VPC "+id, err)
}

func (p *Provider) CreateSubnet(ctx context.Context, spec cloud.SubnetSpec) (string, error) {
	input := &ec2.CreateSubnetInput{
		VpcId:             aws.String(spec.NetworkID),
		CidrBlock:         aws.String(spec.CidrBlock),
		TagSpecifications: tagSpecs(types.ResourceTypeSubnet, spec.Tags),
	}
	if spec.AvailabilityZone != "" {
		input.AvailabilityZone = aws.String(spec.AvailabilityZone)
	}
	resp, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return "", mapError("create subnet", err)
	}
	return aws.ToString(resp.Subnet.SubnetId), nil
}

func (p *Provider) DeleteSubnet(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
	return mapError("delete subnet "+id, err)
}

func (p *Provider) CreateGateway(ctx context.Context, tags map[string]string) (string, error) {
	resp, err := p.ec2Client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpecs(types.ResourceTypeInternetGateway, tags),
	})
	if err != nil {
		return "", mapError("create IGW", err)
	}
	return aws.ToString(resp.InternetGateway.InternetGatewayId), nil
}

func (p *Provider) AttachGateway(ctx context.Context, gatewayID, networkID string) error {
	_, err := p.ec2Client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(gatewayID),
		VpcId:             aws.String(networkID),
	})
	return mapError(fmt.Sprintf("attach IGW %s to %s", gatewayID, networkID), err)
}

func (p *Provider) DetachGateway(ctx context.Context, gatewayID, networkID string) error {
	_, err := p.ec2Client.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
		InternetGatewayId: aws.String(gatewayID),
		VpcId:             aws.String(networkID),
	})
	return mapError(fmt.Sprintf("detach IGW %s from %s", gatewayID, networkID), err)
}

func (p *Provider) DeleteGateway(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{InternetGatewayId: aws.String(id)})
	return mapError("delete IGW "+id, err)
}

func (p *Provider) CreateRouteTable(ctx context.Context, networkID string, tags map[string]string) (string, error) {
	resp, err := p.ec2Client.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             aws.String(networkID),
		TagSpecifications: tagSpecs(types.ResourceTypeRouteTable, tags),
	})
	if err != nil {
		return "", mapError("create RT", err)
	}
	return aws.ToString(resp.RouteTable.RouteTableId), nil
}

func (p *Provider) CreateRoute(ctx context.Context, routeTableID, destinationCidr, gatewayID string) error {
	_, err := p.ec2Client.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         aws.String(routeTableID),
		DestinationCidrBlock: aws.String(destinationCidr),
		GatewayId:            aws.String(gatewayID),
	})
	return mapError(fmt.Sprintf("create route %s in %s", destinationCidr, routeTableID), err)
}

func (p *Provider) AssociateRouteTable(ctx context.Context, routeTableID, subnetID string) (string, error) {
	resp, err := p.ec2Client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: aws.String(routeTableID),
		SubnetId:     aws.String(subnetID),
	})
	if err != nil {
		return "", mapError(fmt.Sprintf("associate RT %s with %s", routeTableID, subnetID), err)
	}
	return aws.ToString(resp.AssociationId), nil
}

// DeleteRouteTable removes explicit subnet associations, then the table.
// EC2 refuses to delete a table that is still associated.
func (p *Provider) DeleteRouteTable(ctx context.Context, id string) error {
	resp, err := p.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{RouteTableIds: []string{id}})
	if err != nil {
		return mapError("describe RT "+id, err)
	}
	for _, rt := range resp.RouteTables {
		for _, assoc := range rt.Associations {
			if aws.ToBool(assoc.Main) || assoc.RouteTableAssociationId == nil {
				continue
			}
			logging.Debug("disassociating route table", "route_table", id, "association", aws.ToString(assoc.RouteTableAssociationId))
			_, err := p.ec2Client.DisassociateRouteTable(ctx, &ec2.DisassociateRouteTableInput{
				AssociationId: assoc.RouteTableAssociationId,
			})
			if err = mapError("disassociate RT "+id, err); err != nil && !errors.Is(err, cloud.ErrNotFound) {
				return err
			}
		}
	}

	_, err = p.ec2Client.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: aws.String(id)})
	return mapError("delete RT "+id, err)
}

func (p *Provider) CreateSecurityGroup(ctx context.Context, spec cloud.SecurityGroupSpec) (string, error) {
	resp, err := p.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(spec.Name),
		Description:       aws.String(spec.Description),
		VpcId:             aws.String(spec.NetworkID),
		TagSpecifications: tagSpecs(types.ResourceTypeSecurityGroup, spec.Tags),
	})
	if err != nil {
		return "", mapError("create security group "+spec.Name, err)
	}
	return aws.ToString(resp.GroupId), nil
}

func permissions(rule cloud.Rule) []types.IpPermission {
	return []types.IpPermission{{
		IpProtocol: aws.String(rule.Protocol),
		FromPort:   aws.Int32(int32(rule.FromPort)),
		ToPort:     aws.Int32(int32(rule.ToPort)),
		IpRanges:   []types.IpRange{{CidrIp: aws.String(rule.CidrIP)}},
	}}
}

func (p *Provider) AuthorizeIngress(ctx context.Context, groupID string, rule cloud.Rule) error {
	_, err := p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: permissions(rule),
	})
	return mapError("authorize ingress on "+groupID, err)
}

func (p *Provider) AuthorizeEgress(ctx context.Context, groupID string, rule cloud.Rule) error {
	_, err := p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: permissions(rule),
	})
	return mapError("authorize egress on "+groupID, err)
}

func (p *Provider) DeleteSecurityGroup(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
	return mapError("delete security group "+id, err)
}
