package pipeline

import "context"

type Dispatcher interface {
	Dispatch(ctx context.Context, raw []byte) error
}

type Ingester interface {
	Ingest(ctx context.Context, raw []byte) error
}

// Router sends the outgoing queue to the dispatcher and every other queue to
// the ingestor. Incoming queues share one parser; the queue name only picks
// the branch.
type Router struct {
	outgoingQueue string
	outgoing      Dispatcher
	incoming      Ingester
}

func NewRouter(outgoingQueue string, outgoing Dispatcher, incoming Ingester) *Router {
	return &Router{outgoingQueue: outgoingQueue, outgoing: outgoing, incoming: incoming}
}

func (r *Router) Handle(ctx context.Context, queue string, body []byte) error {
	if queue == r.outgoingQueue {
		return r.outgoing.Dispatch(ctx, body)
	}
	return r.incoming.Ingest(ctx, body)
}
