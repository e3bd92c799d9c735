package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ResolveImage reads an image ID from an SSM parameter such as
// /aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64.
func (p *Provider) ResolveImage(ctx context.Context, parameter string) (string, error) {
	resp, err := p.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(parameter)})
	if err != nil {
		return "", fmt.Errorf("failed to read SSM parameter %s: %w", parameter, err)
	}
	if resp.Parameter == nil || aws.ToString(resp.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s has no value", parameter)
	}
	return aws.ToString(resp.Parameter.Value), nil
}
