package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// fakeEC2 records requests. Methods that are not overridden panic through
// the nil embedded interface.
type fakeEC2 struct {
	ec2API

	createVpc     *ec2.CreateVpcInput
	runInstances  *ec2.RunInstancesInput
	disassociated []string
	deletedRT     []string
	instances     []types.Instance
	describeErr   error
	routeTables   []types.RouteTable
	deleteVpcErr  error
}

func (f *fakeEC2) CreateVpc(ctx context.Context, params *ec2.CreateVpcInput, optFns ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	f.createVpc = params
	return &ec2.CreateVpcOutput{Vpc: &types.Vpc{VpcId: aws.String("vpc-0abc")}}, nil
}

func (f *fakeEC2) DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	return &ec2.DeleteVpcOutput{}, f.deleteVpcErr
}

func (f *fakeEC2) RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	f.runInstances = params
	return &ec2.RunInstancesOutput{Instances: []types.Instance{{InstanceId: aws.String("i-0abc")}}}, nil
}

func (f *fakeEC2) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{Instances: f.instances}}}, nil
}

func (f *fakeEC2) DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	return &ec2.DescribeRouteTablesOutput{RouteTables: f.routeTables}, nil
}

func (f *fakeEC2) DisassociateRouteTable(ctx context.Context, params *ec2.DisassociateRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DisassociateRouteTableOutput, error) {
	f.disassociated = append(f.disassociated, aws.ToString(params.AssociationId))
	return &ec2.DisassociateRouteTableOutput{}, nil
}

func (f *fakeEC2) DeleteRouteTable(ctx context.Context, params *ec2.DeleteRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	f.deletedRT = append(f.deletedRT, aws.ToString(params.RouteTableId))
	return &ec2.DeleteRouteTableOutput{}, nil
}

type fakeSSM struct {
	value string
}

func (f *fakeSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: params.Name, Value: aws.String(f.value)}}, nil
}

func TestCreateNetwork_TagsAtCreation(t *testing.T) {
	f := &fakeEC2{}
	p := &Provider{ec2Client: f}

	id, err := p.CreateNetwork(context.Background(), "10.0.0.0/16", map[string]string{
		cloud.TagStack: "wordpress",
		cloud.TagName:  "dockerVPC",
	})
	require.NoError(t, err)
	assert.Equal(t, "vpc-0abc", id)

	require.Len(t, f.createVpc.TagSpecifications, 1)
	spec := f.createVpc.TagSpecifications[0]
	assert.Equal(t, types.ResourceTypeVpc, spec.ResourceType)
	assert.Equal(t, map[string]string{cloud.TagStack: "wordpress", cloud.TagName: "dockerVPC"}, fromTags(spec.Tags))
	assert.Equal(t, "Name", aws.ToString(spec.Tags[0].Key))
}

func TestCreateInstance_LaunchParameters(t *testing.T) {
	f := &fakeEC2{}
	p := &Provider{ec2Client: f}

	id, err := p.CreateInstance(context.Background(), cloud.InstanceSpec{
		ImageID:           "ami-0747e613a2a1ff483",
		InstanceType:      "t2.micro",
		KeyName:           "vockey",
		SubnetID:          "subnet-1",
		SecurityGroupIDs:  []string{"sg-1", "sg-2"},
		UserData:          []byte("#!/bin/bash\n"),
		AssociatePublicIP: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "i-0abc", id)

	in := f.runInstances
	assert.Equal(t, types.InstanceTypeT2Micro, in.InstanceType)
	assert.Equal(t, "vockey", aws.ToString(in.KeyName))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("#!/bin/bash\n")), aws.ToString(in.UserData))
	assert.Empty(t, in.TagSpecifications)

	require.Len(t, in.NetworkInterfaces, 1)
	nic := in.NetworkInterfaces[0]
	assert.Equal(t, int32(0), aws.ToInt32(nic.DeviceIndex))
	assert.Equal(t, "subnet-1", aws.ToString(nic.SubnetId))
	assert.Equal(t, []string{"sg-1", "sg-2"}, nic.Groups)
	assert.True(t, aws.ToBool(nic.AssociatePublicIpAddress))
	assert.True(t, aws.ToBool(nic.DeleteOnTermination))
}

func TestDescribeInstance(t *testing.T) {
	f := &fakeEC2{instances: []types.Instance{{
		InstanceId:      aws.String("i-0abc"),
		State:           &types.InstanceState{Name: types.InstanceStateNameRunning},
		PublicIpAddress: aws.String("54.1.2.3"),
	}}}
	p := &Provider{ec2Client: f}

	inst, err := p.DescribeInstance(context.Background(), "i-0abc")
	require.NoError(t, err)
	assert.Equal(t, cloud.InstanceRunning, inst.State)
	assert.Equal(t, "54.1.2.3", inst.PublicIP)

	_, err = p.DescribeInstance(context.Background(), "i-other")
	assert.ErrorIs(t, err, cloud.ErrNotFound)

	f.describeErr = &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "does not exist"}
	_, err = p.DescribeInstance(context.Background(), "i-0abc")
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestDeleteRouteTable_DisassociatesFirst(t *testing.T) {
	f := &fakeEC2{routeTables: []types.RouteTable{{
		RouteTableId: aws.String("rtb-1"),
		Associations: []types.RouteTableAssociation{
			{RouteTableAssociationId: aws.String("rtbassoc-1"), SubnetId: aws.String("subnet-1")},
			{RouteTableAssociationId: aws.String("rtbassoc-main"), Main: aws.Bool(true)},
		},
	}}}
	p := &Provider{ec2Client: f}

	require.NoError(t, p.DeleteRouteTable(context.Background(), "rtb-1"))
	assert.Equal(t, []string{"rtbassoc-1"}, f.disassociated)
	assert.Equal(t, []string{"rtb-1"}, f.deletedRT)
}

func TestDeleteNetwork_DependencyViolation(t *testing.T) {
	f := &fakeEC2{deleteVpcErr: &smithy.GenericAPIError{Code: "DependencyViolation", Message: "The vpc 'vpc-1' has dependencies and cannot be deleted."}}
	p := &Provider{ec2Client: f}

	err := p.DeleteNetwork(context.Background(), "vpc-1")
	assert.ErrorIs(t, err, cloud.ErrDependencyViolation)
	assert.Contains(t, err.Error(), "delete VPC vpc-1")
}

func TestResolveImage(t *testing.T) {
	p := &Provider{ssmClient: &fakeSSM{value: "ami-0123456789"}}

	id, err := p.ResolveImage(context.Background(), "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64")
	require.NoError(t, err)
	assert.Equal(t, "ami-0123456789", id)

	p = &Provider{ssmClient: &fakeSSM{}}
	_, err = p.ResolveImage(context.Background(), "/empty")
	assert.ErrorContains(t, err, "has no value")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"nil", nil, nil},
		{"vpc not found", &smithy.GenericAPIError{Code: "InvalidVpcID.NotFound"}, cloud.ErrNotFound},
		{"gateway not attached", &smithy.GenericAPIError{Code: "Gateway.NotAttached"}, cloud.ErrNotFound},
		{"group not found", &smithy.GenericAPIError{Code: "InvalidGroup.NotFound"}, cloud.ErrNotFound},
		{"dependency", &smithy.GenericAPIError{Code: "DependencyViolation"}, cloud.ErrDependencyViolation},
		{"other api error", &smithy.GenericAPIError{Code: "UnauthorizedOperation"}, nil},
		{"plain error", errors.New("dial tcp: i/o timeout"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("op", tt.err)
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			} else {
				assert.NotErrorIs(t, err, cloud.ErrNotFound)
				assert.NotErrorIs(t, err, cloud.ErrDependencyViolation)
			}
		})
	}
}
