package aws

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// CreateInstance launches a single instance with one network interface in
// the given subnet. The interface is removed with the instance.
func (p *Provider) CreateInstance(ctx context.Context, spec cloud.InstanceSpec) (string, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(spec.ImageID),
		InstanceType: types.InstanceType(spec.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(spec.SubnetID),
			Groups:                   spec.SecurityGroupIDs,
			AssociatePublicIpAddress: aws.Bool(spec.AssociatePublicIP),
			DeleteOnTermination:      aws.Bool(true),
		}},
		TagSpecifications: tagSpecs(types.ResourceTypeInstance, spec.Tags),
	}
	if spec.KeyName != "" {
		input.KeyName = aws.String(spec.KeyName)
	}
	if len(spec.UserData) > 0 {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString(spec.UserData))
	}

	resp, err := p.ec2Client.RunInstances(ctx, input)
	if err != nil {
		return "", mapError("run instance", err)
	}
	if len(resp.Instances) == 0 {
		return "", fmt.Errorf("run instance: no instances created")
	}
	return aws.ToString(resp.Instances[0].InstanceId), nil
}

func (p *Provider) DescribeInstance(ctx context.Context, id string) (*cloud.Instance, error) {
	resp, err := p.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}})
	if err != nil {
		return nil, mapError("describe instance "+id, err)
	}
	for _, r := range resp.Reservations {
		for _, inst := range r.Instances {
			if aws.ToString(inst.InstanceId) == id {
				return toInstance(inst), nil
			}
		}
	}
	return nil, fmt.Errorf("describe instance %s: %w", id, cloud.ErrNotFound)
}

func (p *Provider) TerminateInstance(ctx context.Context, id string) error {
	_, err := p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}})
	return mapError("terminate instance "+id, err)
}

func toInstance(inst types.Instance) *cloud.Instance {
	out := &cloud.Instance{
		ID:        aws.ToString(inst.InstanceId),
		PublicIP:  aws.ToString(inst.PublicIpAddress),
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
	}
	if inst.State != nil {
		out.State = cloud.InstanceState(inst.State.Name)
	}
	return out
}
