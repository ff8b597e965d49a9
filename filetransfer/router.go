package transfer

import (
	"github.com/coreloop/raccess/wire"
	"github.com/google/uuid"
)

// Producer is anything that issues requests through a Consumer and wants
// their replies delivered back.
type Producer interface {
	OnReply(req *PendingRequest)
}

// PendingRequest pairs an issued wire.FileRequest with its eventual
// wire.FileReply, plus which side executed it.
type PendingRequest struct {
	Target  wire.FileTaskTarget
	Request wire.FileRequest
	Reply   wire.FileReply
}

// ProducerProxy lets a Producer be torn down while one of its requests
// is still in flight: after Detach, OnReply becomes a no-op instead of
// touching a dead producer. This is the detachable-proxy pattern the
// original client uses to let FileRequestProducerProxy outlive whatever
// object issued the request.
type ProducerProxy struct {
	producer Producer
}

// NewProducerProxy wraps p so requests issued through it can outlive p.
func NewProducerProxy(p Producer) *ProducerProxy {
	return &ProducerProxy{producer: p}
}

// Detach makes all future OnReply calls no-ops. Only ever called from
// the connection's single task-runner goroutine, alongside everything
// else that touches the proxy, so no synchronization is needed.
func (p *ProducerProxy) Detach() {
	p.producer = nil
}

func (p *ProducerProxy) OnReply(req *PendingRequest) {
	if p.producer != nil {
		p.producer.OnReply(req)
	}
}

type inflightRequest struct {
	proxy   *ProducerProxy
	target  wire.FileTaskTarget
	request wire.FileRequest
}

// Consumer routes FileRequests to whichever side of the connection they
// target: LOCAL requests run against a FilesystemExecutor immediately,
// REMOTE requests go out over the wire.Channel and wait for a
// correlated FileReply. Because the whole connection is single
// goroutine (per the task-runner model), FIFO-per-producer ordering
// falls out for free: DoRequest and OnFileReply only ever run on that
// one goroutine, in the order frames arrive on the wire.
type Consumer struct {
	local   FilesystemExecutor
	channel *wire.Channel

	pending map[uuid.UUID]*inflightRequest
}

// NewConsumer builds a router over a local executor and the connection
// used to reach the remote peer's own executor.
func NewConsumer(local FilesystemExecutor, channel *wire.Channel) *Consumer {
	return &Consumer{
		local:   local,
		channel: channel,
		pending: make(map[uuid.UUID]*inflightRequest),
	}
}

// DoRequest issues req on behalf of proxy against target.
func (c *Consumer) DoRequest(proxy *ProducerProxy, target wire.FileTaskTarget, req wire.FileRequest) {
	req.Target = target
	if req.ID == (uuid.UUID{}) {
		req.ID = uuid.New()
	}

	if target == wire.FileTaskTargetLocal {
		reply := c.local.Execute(req)
		reply.ID = req.ID
		proxy.OnReply(&PendingRequest{Target: target, Request: req, Reply: reply})
		return
	}

	c.pending[req.ID] = &inflightRequest{proxy: proxy, target: target, request: req}

	payload, err := wire.Marshal(req)
	if err != nil {
		c.failInflight(req.ID, wire.FileErrorUnknown)
		return
	}
	if err := c.channel.Send(wire.MessageTypeFileRequest, payload); err != nil {
		c.failInflight(req.ID, wire.FileErrorUnknown)
	}
}

// OnFileReply feeds an inbound wire.MessageTypeFileReply payload into
// the router; wire it from the connection's wire.Listener implementation.
func (c *Consumer) OnFileReply(payload []byte) {
	var reply wire.FileReply
	if err := wire.Unmarshal(payload, &reply); err != nil {
		return
	}

	in, ok := c.pending[reply.ID]
	if !ok {
		// Reply for a request whose producer already detached and was
		// forgotten, or a stray/duplicate frame. Dropped, per the
		// no-reply-to-a-detached-proxy invariant.
		return
	}
	delete(c.pending, reply.ID)

	in.proxy.OnReply(&PendingRequest{Target: in.target, Request: in.request, Reply: reply})
}

func (c *Consumer) failInflight(id uuid.UUID, code wire.FileErrorCode) {
	in, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	in.proxy.OnReply(&PendingRequest{
		Target:  in.target,
		Request: in.request,
		Reply:   wire.FileReply{ID: id, ErrorCode: code},
	})
}
