package remote

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/labsweep/internal/param"
)

// readyTimeout bounds the status call behind Job.Ready, which takes no
// context.
const readyTimeout = 5 * time.Second

// Dial opens a plaintext connection to an executor service.
func Dial(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial executor %s: %w", target, err)
	}
	return conn, nil
}

// Ensure Client implements Executor.
var _ Executor = (*Client)(nil)

// Client is an Executor backed by a remote executor service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an open connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// SubmitBatch sends payloads to the service and returns a handle to the
// remote job.
func (c *Client) SubmitBatch(ctx context.Context, payloads []*param.Set) (Job, error) {
	req, err := EncodeSets(payloads)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodSubmitBatch, req, out); err != nil {
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	id := out.GetFields()["job_id"].GetStringValue()
	if id == "" {
		return nil, fmt.Errorf("submit batch: response has no job_id")
	}
	return &remoteJob{client: c, id: id}, nil
}

type remoteJob struct {
	client *Client
	id     string
}

func (j *remoteJob) ID() string { return j.id }

func (j *remoteJob) request() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"job_id": structpb.NewStringValue(j.id),
	}}
}

// Ready reports false if the service cannot be reached.
func (j *remoteJob) Ready() bool {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()
	out := new(structpb.Struct)
	if err := j.client.conn.Invoke(ctx, methodJobStatus, j.request(), out); err != nil {
		diagf("job %s status: %v", j.id, err)
		return false
	}
	return out.GetFields()["ready"].GetBoolValue()
}

func (j *remoteJob) FetchResults(ctx context.Context) ([]*param.Set, error) {
	out := new(structpb.ListValue)
	if err := j.client.conn.Invoke(ctx, methodFetchResults, j.request(), out); err != nil {
		return nil, fmt.Errorf("fetch results of job %s: %w", j.id, err)
	}
	return DecodeSets(out)
}
