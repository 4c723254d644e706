package directory

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName          = "clinic.directory.v1.Directory"
	patientExistsMethod  = "/" + ServiceName + "/PatientExists"
	providerExistsMethod = "/" + ServiceName + "/ProviderExists"
)

// GRPCChecker calls the profile service's directory. Requests and responses are protobuf
// well-known wrappers (StringValue in, BoolValue out), so no generated stubs are needed.
type GRPCChecker struct {
	conn grpc.ClientConnInterface
}

func NewGRPCChecker(conn grpc.ClientConnInterface) *GRPCChecker {
	return &GRPCChecker{conn: conn}
}

func (c *GRPCChecker) PatientExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, patientExistsMethod, id)
}

func (c *GRPCChecker) ProviderExists(ctx context.Context, id string) (bool, error) {
	return c.exists(ctx, providerExistsMethod, id)
}

func (c *GRPCChecker) exists(ctx context.Context, method, id string) (bool, error) {
	out := &wrapperspb.BoolValue{}
	if err := c.conn.Invoke(ctx, method, wrapperspb.String(id), out); err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("directory %s: %w", method, err)
	}
	return out.GetValue(), nil
}
