// Package remote runs sweep procedures out of process. A LocalExecutor
// evaluates batches on a worker pool; Server and Host expose it over gRPC;
// Client talks to such a service; Procedure adapts any Executor to the
// asynchronous sweep contract.
package remote

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
)

// maxMsgSize allows large batches of vector results.
const maxMsgSize = 16 * 1024 * 1024

// Host serves a LocalExecutor on a TCP address.
type Host struct {
	addr string
	exec *LocalExecutor

	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewHost prepares a host; call Start to begin serving.
func NewHost(addr string, exec *LocalExecutor) *Host {
	return &Host{addr: addr, exec: exec}
}

// Start binds the address and serves in the background.
func (h *Host) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	h.listener = lis
	h.server = NewGRPCServer(h.exec)
	h.running.Store(true)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		opsf("executor listening on %s", lis.Addr())
		if err := h.server.Serve(lis); err != nil && h.running.Load() {
			opsf("executor server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (h *Host) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop drains in-flight calls and stops serving.
func (h *Host) Stop() {
	if !h.running.Load() {
		return
	}
	h.running.Store(false)
	h.server.GracefulStop()
	h.wg.Wait()
	opsf("executor stopped")
}

// NewGRPCServer returns a gRPC server with the executor service registered.
func NewGRPCServer(exec *LocalExecutor) *grpc.Server {
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
	)
	RegisterExecutorServer(gs, NewServer(exec))
	return gs
}
