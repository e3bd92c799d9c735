package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// EC2 error codes that mean the target is already gone.
var notFoundCodes = map[string]bool{
	"InvalidVpcID.NotFound":             true,
	"InvalidSubnetID.NotFound":          true,
	"InvalidInternetGatewayID.NotFound": true,
	"Gateway.NotAttached":               true,
	"InvalidRouteTableID.NotFound":      true,
	"InvalidAssociationID.NotFound":     true,
	"InvalidGroup.NotFound":             true,
	"InvalidGroupId.NotFound":           true,
	"InvalidInstanceID.NotFound":        true,
	"InvalidParameterValue.NotFound":    true,
}

// mapError wraps an SDK error with the operation and translates the API
// error codes the engine cares about into cloud sentinels.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch code := ae.ErrorCode(); {
		case notFoundCodes[code]:
			return fmt.Errorf("%s: %w: %w", op, cloud.ErrNotFound, err)
		case code == "DependencyViolation":
			return fmt.Errorf("%s: %w: %w", op, cloud.ErrDependencyViolation, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
