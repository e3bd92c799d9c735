package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// Discover lists the resources tagged with the stack, in creation order.
// Main route tables, default security groups and terminated instances are
// skipped.
func (p *Provider) Discover(ctx context.Context, stack string) ([]cloud.Resource, error) {
	filters := []types.Filter{{Name: aws.String("tag:" + cloud.TagStack), Values: []string{stack}}}
	var out []cloud.Resource

	vpcs, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: filters})
	if err != nil {
		return nil, mapError("describe VPCs", err)
	}
	for _, v := range vpcs.Vpcs {
		out = append(out, resource(cloud.KindNetwork, aws.ToString(v.VpcId), v.Tags, ""))
	}

	subnets, err := p.ec2Client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{Filters: filters})
	if err != nil {
		return nil, mapError("describe subnets", err)
	}
	for _, s := range subnets.Subnets {
		out = append(out, resource(cloud.KindSubnet, aws.ToString(s.SubnetId), s.Tags, aws.ToString(s.VpcId)))
	}

	igws, err := p.ec2Client.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{Filters: filters})
	if err != nil {
		return nil, mapError("describe IGWs", err)
	}
	for _, g := range igws.InternetGateways {
		var networkID string
		if len(g.Attachments) > 0 {
			networkID = aws.ToString(g.Attachments[0].VpcId)
		}
		out = append(out, resource(cloud.KindGateway, aws.ToString(g.InternetGatewayId), g.Tags, networkID))
	}

	rts, err := p.ec2Client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{Filters: filters})
	if err != nil {
		return nil, mapError("describe RTs", err)
	}
	for _, rt := range rts.RouteTables {
		if isMain(rt) {
			continue
		}
		out = append(out, resource(cloud.KindRouteTable, aws.ToString(rt.RouteTableId), rt.Tags, aws.ToString(rt.VpcId)))
	}

	groups, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{Filters: filters})
	if err != nil {
		return nil, mapError("describe security groups", err)
	}
	for _, g := range groups.SecurityGroups {
		if aws.ToString(g.GroupName) == "default" {
			continue
		}
		out = append(out, resource(cloud.KindSecurityGroup, aws.ToString(g.GroupId), g.Tags, aws.ToString(g.VpcId)))
	}

	instances, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: append(filters, types.Filter{
			Name:   aws.String("instance-state-name"),
			Values: []string{"pending", "running", "shutting-down", "stopping", "stopped"},
		}),
	})
	if err != nil {
		return nil, mapError("describe instances", err)
	}
	for _, r := range instances.Reservations {
		for _, inst := range r.Instances {
			out = append(out, resource(cloud.KindInstance, aws.ToString(inst.InstanceId), inst.Tags, ""))
		}
	}

	cloud.SortByCreationOrder(out)
	return out, nil
}

func resource(kind cloud.Kind, id string, tags []types.Tag, networkID string) cloud.Resource {
	t := fromTags(tags)
	var attrs map[string]string
	if networkID != "" {
		attrs = map[string]string{cloud.AttrNetworkID: networkID}
	}
	return cloud.NewResource(kind, id, t[cloud.TagName], t, attrs)
}

func isMain(rt types.RouteTable) bool {
	for _, a := range rt.Associations {
		if aws.ToBool(a.Main) {
			return true
		}
	}
	return false
}
