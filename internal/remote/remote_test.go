package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/labsweep/internal/param"
	"github.com/banshee-data/labsweep/internal/sweep"
)

var errFault = errors.New("instrument fault")

// scale multiplies x by k and reports both inputs as a vector.
func scale(calls *atomic.Int64, failOn float64) sweep.Procedure {
	return sweep.ProcedureFunc(func(_ context.Context, point *param.Set) (*param.Set, error) {
		if calls != nil {
			calls.Add(1)
		}
		x, err := point.Float64("x")
		if err != nil {
			return nil, err
		}
		if x == failOn {
			return nil, errFault
		}
		k, err := point.Float64("k")
		if err != nil {
			return nil, err
		}
		return param.NewSet(param.New("y", x*k, "V"), param.New("pair", []float64{x, k}, ""))
	})
}

func template() *param.Set {
	return param.MustSet(
		param.New("k", []float64{1, 2, 3}, ""),
		param.New("label", "run-a", ""),
		param.New("x", []float64{0.5, 1.5}, "mV"),
	)
}

func dialBufconn(t *testing.T, exec *LocalExecutor) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(exec)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestCodec_PreservesParameters(t *testing.T) {
	t.Parallel()

	in := param.MustSet(
		param.New("f", 2.5, "Hz"),
		param.New("n", 3, ""),
		param.New("s", "name", ""),
		param.New("b", true, ""),
		param.New("v", []float64{1, 2}, "V"),
		param.New("fixed", []float64{3, 4}, "", param.Iterated(false)),
		param.New("mixed", []any{1.0, "a"}, ""),
	)
	st, err := EncodeSet(in)
	require.NoError(t, err)
	out, err := DecodeSet(st)
	require.NoError(t, err)

	assert.Equal(t, in.Names(), out.Names())
	assert.Equal(t, in.FieldDescriptors(), out.FieldDescriptors())
	assert.Equal(t, []any{2.5, 3.0, "name", true, []float64{1, 2}, []float64{3, 4}, []any{1.0, "a"}}, out.Values())
}

func TestCodec_RejectsUnsupportedValue(t *testing.T) {
	t.Parallel()

	_, err := EncodeSet(param.MustSet(param.New("m", map[string]int{"a": 1}, "")))
	require.Error(t, err)
}

func TestLocalExecutor_OrderedResults(t *testing.T) {
	t.Parallel()

	exec := NewLocalExecutor(scale(nil, -1), 3)
	payloads := make([]*param.Set, 10)
	for i := range payloads {
		payloads[i] = param.MustSet(param.New("x", float64(i), ""), param.New("k", 2.0, ""))
	}

	job, err := exec.SubmitBatch(context.Background(), payloads)
	require.NoError(t, err)
	results, err := job.FetchResults(context.Background())
	require.NoError(t, err)
	assert.True(t, job.Ready())

	require.Len(t, results, 10)
	for i, res := range results {
		y, err := res.Float64("y")
		require.NoError(t, err)
		assert.Equal(t, float64(2*i), y)
	}

	found, err := exec.Job(job.ID())
	require.NoError(t, err)
	assert.Equal(t, job.ID(), found.ID())

	exec.Release(job.ID())
	_, err = exec.Job(job.ID())
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestLocalExecutor_Failure(t *testing.T) {
	t.Parallel()

	exec := NewLocalExecutor(scale(nil, 1), 2)
	job, err := exec.SubmitBatch(context.Background(), []*param.Set{
		param.MustSet(param.New("x", 0.0, ""), param.New("k", 1.0, "")),
		param.MustSet(param.New("x", 1.0, ""), param.New("k", 1.0, "")),
	})
	require.NoError(t, err)

	_, err = job.FetchResults(context.Background())
	require.ErrorIs(t, err, errFault)
}

func TestLocalExecutor_SurvivesSubmitCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	exec := NewLocalExecutor(scale(nil, -1), 1)
	job, err := exec.SubmitBatch(ctx, []*param.Set{param.MustSet(param.New("x", 1.0, ""), param.New("k", 4.0, ""))})
	require.NoError(t, err)
	cancel()

	results, err := job.FetchResults(context.Background())
	require.NoError(t, err)
	y, _ := results[0].Float64("y")
	assert.Equal(t, 4.0, y)
}

func TestProcedure_LocalMatchesSynchronousSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	want, err := sweep.New(nil, sweep.Options{}).Run(ctx, scale(nil, -1), template())
	require.NoError(t, err)

	exec := NewLocalExecutor(scale(nil, -1), 4)
	proc := NewProcedure(exec, "scale")
	sw := sweep.New(nil, sweep.Options{})
	batch, err := sw.Submit(ctx, proc, template())
	require.NoError(t, err)
	got, err := sw.Collect(ctx, batch)
	require.NoError(t, err)

	if diff := cmp.Diff(want.Entries, got.Entries); diff != "" {
		t.Errorf("entries differ (-sync +async):\n%s", diff)
	}
	assert.Empty(t, proc.fetched, "fetched results are released once collected")
	assert.Empty(t, exec.jobs, "collected jobs are released by the executor")
}

func TestProcedure_ReleasesFailedJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exec := NewLocalExecutor(scale(nil, 1), 2)
	proc := NewProcedure(exec, "scale")
	handles, err := proc.SubmitBatch(ctx, []*param.Set{
		param.MustSet(param.New("x", 0.0, ""), param.New("k", 1.0, "")),
		param.MustSet(param.New("x", 1.0, ""), param.New("k", 1.0, "")),
	})
	require.NoError(t, err)

	_, err = proc.Collect(ctx, handles[0])
	require.ErrorIs(t, err, errFault)
	assert.Empty(t, exec.jobs)
	assert.Empty(t, proc.fetched)
}

func TestProcedure_KeepsJobOnCancelledCollect(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	exec := NewLocalExecutor(sweep.ProcedureFunc(func(ctx context.Context, point *param.Set) (*param.Set, error) {
		<-release
		return param.MustSet(param.New("y", 1.0, "")), nil
	}), 1)
	proc := NewProcedure(exec, "blocked")
	h, err := proc.Submit(context.Background(), param.MustSet(param.New("x", 1.0, "")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = proc.Collect(ctx, h)
	require.ErrorIs(t, err, context.Canceled)
	exec.mu.Lock()
	assert.Len(t, exec.jobs, 1)
	exec.mu.Unlock()

	close(release)
	res, err := proc.Collect(context.Background(), h)
	require.NoError(t, err)
	y, _ := res.Float64("y")
	assert.Equal(t, 1.0, y)
	assert.Empty(t, exec.jobs)
}

func TestProcedure_OverGRPC(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var calls atomic.Int64
	client := dialBufconn(t, NewLocalExecutor(scale(&calls, -1), 2))

	want, err := sweep.New(nil, sweep.Options{}).Run(ctx, scale(nil, -1), template())
	require.NoError(t, err)

	sw := sweep.New(nil, sweep.Options{})
	batch, err := sw.Submit(ctx, NewProcedure(client, "scale"), template())
	require.NoError(t, err)
	require.Len(t, batch.Submissions, 3)

	got, err := sw.Collect(ctx, batch)
	require.NoError(t, err)

	if diff := cmp.Diff(want.Entries, got.Entries); diff != "" {
		t.Errorf("entries differ (-sync +grpc):\n%s", diff)
	}
	assert.EqualValues(t, 6, calls.Load())
}

func TestClient_ReadyThenRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := dialBufconn(t, NewLocalExecutor(scale(nil, -1), 1))
	job, err := client.SubmitBatch(ctx, []*param.Set{
		param.MustSet(param.New("x", 2.0, ""), param.New("k", 5.0, "")),
	})
	require.NoError(t, err)
	require.Eventually(t, job.Ready, 5*time.Second, 10*time.Millisecond)

	results, err := job.FetchResults(ctx)
	require.NoError(t, err)
	y, _ := results[0].Float64("y")
	assert.Equal(t, 10.0, y)

	// Fetched jobs are released on the server.
	_, err = job.FetchResults(ctx)
	assert.Equal(t, codes.NotFound, status.Code(errors.Unwrap(err)))
}

func TestProcedure_RemoteFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := dialBufconn(t, NewLocalExecutor(scale(nil, 1.5), 2))
	sw := sweep.New(nil, sweep.Options{})
	batch, err := sw.Submit(ctx, NewProcedure(client, "scale"), template())
	require.NoError(t, err)

	_, err = sw.Collect(ctx, batch)
	require.ErrorIs(t, err, sweep.ErrProcedureFailure)
	assert.Equal(t, codes.Aborted, status.Code(errors.Unwrap(errors.Unwrap(err))))
}

func TestServer_UnknownJob(t *testing.T) {
	t.Parallel()

	client := dialBufconn(t, NewLocalExecutor(scale(nil, -1), 1))
	job := &remoteJob{client: client, id: "missing"}
	assert.False(t, job.Ready())

	_, err := job.FetchResults(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(errors.Unwrap(err)))
}

func TestHost_StartStop(t *testing.T) {
	t.Parallel()

	h := NewHost("127.0.0.1:0", NewLocalExecutor(scale(nil, -1), 1))
	require.NoError(t, h.Start())
	require.NotNil(t, h.Addr())

	conn, err := Dial(h.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	job, err := NewClient(conn).SubmitBatch(context.Background(), []*param.Set{
		param.MustSet(param.New("x", 2.0, ""), param.New("k", 3.0, "")),
	})
	require.NoError(t, err)
	results, err := job.FetchResults(context.Background())
	require.NoError(t, err)
	y, _ := results[0].Float64("y")
	assert.Equal(t, 6.0, y)

	h.Stop()
	h.Stop()
}

func ExampleEncodeSet() {
	st, _ := EncodeSet(param.MustSet(param.New("x", 1.5, "V")))
	p := st.GetFields()["parameters"].GetListValue().GetValues()[0].GetStructValue().GetFields()
	fmt.Println(p["name"].GetStringValue(), p["value"].GetNumberValue(), p["units"].GetStringValue())
	// Output: x 1.5 V
}
