package directory

import (
	"context"
	"net"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/rdvmed/clinicsched/libs/grpcx"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestPGChecker(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM patients").WithArgs("pat-1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM providers").WithArgs("dr-x").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	c := NewPGChecker(mock)
	ok, err := c.PatientExists(context.Background(), "pat-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ProviderExists(context.Background(), "dr-x")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeDirectory struct {
	patients  map[string]bool
	providers map[string]bool
}

func existsHandler(lookup func(*fakeDirectory) map[string]bool) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := &wrapperspb.StringValue{}
		if err := dec(in); err != nil {
			return nil, err
		}
		if in.GetValue() == "" {
			return nil, status.Error(codes.InvalidArgument, "empty id")
		}
		if in.GetValue() == "gone" {
			return nil, status.Error(codes.NotFound, "gone")
		}
		return wrapperspb.Bool(lookup(srv.(*fakeDirectory))[in.GetValue()]), nil
	}
}

func startDirectory(t *testing.T, impl *fakeDirectory) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "PatientExists", Handler: existsHandler(func(f *fakeDirectory) map[string]bool { return f.patients })},
			{MethodName: "ProviderExists", Handler: existsHandler(func(f *fakeDirectory) map[string]bool { return f.providers })},
		},
	}, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpcx.Dial("passthrough:///bufnet", grpcx.DialOptions{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCChecker(t *testing.T) {
	conn := startDirectory(t, &fakeDirectory{
		patients:  map[string]bool{"pat-1": true},
		providers: map[string]bool{"dr-1": true},
	})
	c := NewGRPCChecker(conn)
	ctx := context.Background()

	ok, err := c.PatientExists(ctx, "pat-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ProviderExists(ctx, "dr-2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.ProviderExists(ctx, "gone")
	require.NoError(t, err, "NotFound status means the record does not exist")
	require.False(t, ok)

	_, err = c.PatientExists(ctx, "")
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStaticDirectory(t *testing.T) {
	d := NewStatic().AddPatients("pat-1").AddProviders("dr-1")
	ok, _ := d.PatientExists(context.Background(), "pat-1")
	require.True(t, ok)
	ok, _ = d.ProviderExists(context.Background(), "pat-1")
	require.False(t, ok)
}
