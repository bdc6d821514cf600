package remote

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "labsweep.remote.v1.Executor"

const (
	methodSubmitBatch  = "/" + serviceName + "/SubmitBatch"
	methodJobStatus    = "/" + serviceName + "/JobStatus"
	methodFetchResults = "/" + serviceName + "/FetchResults"
)

// ExecutorServer is the server side of the executor service. Requests and
// responses use the well-known Struct and ListValue messages:
//
//	SubmitBatch(ListValue of payloads) -> {"job_id", "size"}
//	JobStatus({"job_id"})              -> {"job_id", "ready"}
//	FetchResults({"job_id"})           -> ListValue of results
type ExecutorServer interface {
	SubmitBatch(context.Context, *structpb.ListValue) (*structpb.Struct, error)
	JobStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FetchResults(context.Context, *structpb.Struct) (*structpb.ListValue, error)
}

// RegisterExecutorServer registers srv on s.
func RegisterExecutorServer(s grpc.ServiceRegistrar, srv ExecutorServer) {
	s.RegisterService(&executorServiceDesc, srv)
}

var executorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitBatch", Handler: submitBatchHandler},
		{MethodName: "JobStatus", Handler: jobStatusHandler},
		{MethodName: "FetchResults", Handler: fetchResultsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "labsweep/remote/v1/executor.proto",
}

func submitBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).SubmitBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSubmitBatch}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutorServer).SubmitBatch(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

func jobStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).JobStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodJobStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutorServer).JobStatus(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func fetchResultsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).FetchResults(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFetchResults}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutorServer).FetchResults(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Ensure Server implements the gRPC interface.
var _ ExecutorServer = (*Server)(nil)

// Server exposes a LocalExecutor over gRPC.
type Server struct {
	exec *LocalExecutor
}

// NewServer creates a server backed by exec.
func NewServer(exec *LocalExecutor) *Server {
	return &Server{exec: exec}
}

// SubmitBatch implements ExecutorServer.
func (s *Server) SubmitBatch(ctx context.Context, req *structpb.ListValue) (*structpb.Struct, error) {
	payloads, err := DecodeSets(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	job, err := s.exec.SubmitBatch(ctx, payloads)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	opsf("job %s accepted: %d payloads", job.ID(), len(payloads))
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"job_id": structpb.NewStringValue(job.ID()),
		"size":   structpb.NewNumberValue(float64(len(payloads))),
	}}, nil
}

// JobStatus implements ExecutorServer.
func (s *Server) JobStatus(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	job, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"job_id": structpb.NewStringValue(job.ID()),
		"ready":  structpb.NewBoolValue(job.Ready()),
	}}, nil
}

// FetchResults implements ExecutorServer. It blocks until the job is done.
// The job is released once fetched or once it has failed.
func (s *Server) FetchResults(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	job, err := s.lookup(req)
	if err != nil {
		return nil, err
	}
	results, err := job.FetchResults(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(ctx.Err()).Err()
		}
		s.exec.Release(job.ID())
		return nil, status.Error(codes.Aborted, err.Error())
	}
	out, err := EncodeSets(results)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.exec.Release(job.ID())
	return out, nil
}

func (s *Server) lookup(req *structpb.Struct) (Job, error) {
	id := req.GetFields()["job_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}
	job, err := s.exec.Job(id)
	if errors.Is(err, ErrJobNotFound) {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return job, err
}
