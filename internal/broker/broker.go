// Package broker provides the cross-process "a job became due" wakeup
// signal referenced in spec.md §5 ("multiple worker processes may share a
// Queue backed by the same Store; a wakeup broadcast lets an idle worker
// skip its poll interval when another process enqueues work"). Grounded on
// the teacher's cmd/worker/main.go AMQP consumer and
// internal/controller/campaign_controller.go's publisher-on-send pattern,
// repurposed from a work-item queue into a fanout notification bus: the
// payload is never a job itself (the Store remains the only source of
// truth for job state), only a hint to re-poll.
package broker

import "context"

// Broker is a best-effort wakeup fanout. Missing a wakeup is always safe:
// workers fall back to polling LeaseNext on a fixed interval regardless.
type Broker interface {
	// Publish announces that campaignID has newly-due work. Delivery is
	// not guaranteed; callers must not depend on it for correctness.
	Publish(ctx context.Context, campaignID string) error

	// Subscribe returns a channel of campaign ids that had a wakeup
	// published for them. The channel is closed when ctx is done or the
	// underlying connection is closed.
	Subscribe(ctx context.Context) (<-chan string, error)

	Close() error
}
