package main

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// switchDB is a pinger whose result can be changed while watched.
type switchDB struct {
	mu  sync.Mutex
	err error
}

func (d *switchDB) Ping(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *switchDB) set(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// dialHealth serves s over bufconn and returns a connected health client.
func dialHealth(t *testing.T, s *grpc.Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err, "failed to dial bufnet")
	t.Cleanup(func() { _ = conn.Close() })

	return healthpb.NewHealthClient(conn)
}

func TestHealthFollowsDatabase(t *testing.T) {
	ls := middleware.NewLimiterStore(6000, 1000, time.Minute)
	t.Cleanup(ls.Stop)

	hs := health.NewServer()
	client := dialHealth(t, newHealthServer(hs, ls))

	db := &switchDB{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go watchDatabase(ctx, db, hs, 20*time.Millisecond)

	servingIs := func(want healthpb.HealthCheckResponse_ServingStatus) func() bool {
		return func() bool {
			resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
			return err == nil && resp.GetStatus() == want
		}
	}

	require.Eventually(t, servingIs(healthpb.HealthCheckResponse_SERVING), 2*time.Second, 10*time.Millisecond)

	db.set(errors.New("no reachable servers"))
	require.Eventually(t, servingIs(healthpb.HealthCheckResponse_NOT_SERVING), 2*time.Second, 10*time.Millisecond)

	db.set(nil)
	require.Eventually(t, servingIs(healthpb.HealthCheckResponse_SERVING), 2*time.Second, 10*time.Millisecond)
}

func TestHealthCheckRateLimited(t *testing.T) {
	ls := middleware.NewLimiterStore(1, 1, time.Minute)
	t.Cleanup(ls.Stop)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	client := dialHealth(t, newHealthServer(hs, ls))

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
