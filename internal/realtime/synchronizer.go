package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/rbac"
	appErrors "github.com/noah-isme/campus-ops-api/pkg/errors"
)

// Snapshot is the full scoped state of a collection at one point in time.
// Seq increases by one per delivery on a subscription.
type Snapshot struct {
	Collection models.Collection `json:"collection"`
	Seq        uint64            `json:"seq"`
	Items      []Document        `json:"items"`
	At         time.Time         `json:"at"`
	Err        error             `json:"-"`
}

// SubscriptionObserver is told when subscriptions open and close.
type SubscriptionObserver interface {
	SubscriptionOpened(collection string)
	SubscriptionClosed(collection string)
}

type noopObserver struct{}

func (noopObserver) SubscriptionOpened(string) {}
func (noopObserver) SubscriptionClosed(string) {}

// Synchronizer serves scoped, self-refreshing collection snapshots.
type Synchronizer struct {
	broker   *Broker
	sources  map[models.Collection]Source
	logger   *zap.Logger
	observer SubscriptionObserver
	now      func() time.Time
}

// NewSynchronizer wires sources per collection onto broker.
func NewSynchronizer(broker *Broker, sources map[models.Collection]Source, observer SubscriptionObserver, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Synchronizer{broker: broker, sources: sources, logger: logger, observer: observer, now: time.Now}
}

// Subscribe opens a subscription for actor. Callers holding <resource>:view_all
// see the whole collection, other viewers only what they created, and callers
// without view permission are refused.
func (s *Synchronizer) Subscribe(ctx context.Context, collection models.Collection, actor models.Actor) (*Subscription, error) {
	perm, ok := rbac.ViewPermission(collection)
	source, hasSource := s.sources[collection]
	if !ok || !hasSource {
		return nil, appErrors.InvalidArgument("collection", fmt.Sprintf("unknown collection %q", collection))
	}
	if !rbac.Allows(actor.Role, perm) {
		return nil, appErrors.PermissionDenied(string(actor.Role), string(perm))
	}

	ownerID := actor.ID
	if rbac.ScopeAll(actor.Role, collection) {
		ownerID = ""
	}

	signal, release := s.broker.Subscribe(func(ev models.ChangeEvent) bool {
		return ev.Collection == collection && (ownerID == "" || ev.OwnerID == ownerID)
	})

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		Collection: collection,
		out:        make(chan Snapshot, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.observer.SubscriptionOpened(string(collection))
	logger := s.logger.With(zap.String("collection", string(collection)), zap.String("actor_id", actor.ID), zap.Bool("scope_all", ownerID == ""))
	logger.Debug("subscription opened")

	go func() {
		defer func() {
			release()
			close(sub.out)
			close(sub.done)
			s.observer.SubscriptionClosed(string(collection))
			logger.Debug("subscription closed")
		}()

		var seq uint64
		push := func() {
			items, err := source.Load(subCtx, ownerID)
			if subCtx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warn("snapshot query failed", zap.Error(err))
				sub.deliver(Snapshot{Collection: collection, Seq: seq, At: s.now().UTC(), Err: appErrors.FromStorage(err, "snapshot unavailable")})
				return
			}
			seq++
			sub.deliver(Snapshot{Collection: collection, Seq: seq, Items: items, At: s.now().UTC()})
		}

		push()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-signal:
				push()
			}
		}
	}()

	return sub, nil
}

// Subscription is an explicit handle on a live snapshot stream.
type Subscription struct {
	Collection models.Collection

	out    chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Updates yields snapshots. A slow reader only ever sees the newest pending
// snapshot. The channel closes after Close or context cancellation.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.out
}

// Close stops deliveries and releases the feed handle. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed once the subscription has fully shut down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// deliver replaces any undelivered snapshot with snap. Only the subscription
// goroutine sends, so the second send never blocks.
func (s *Subscription) deliver(snap Snapshot) {
	select {
	case s.out <- snap:
		return
	default:
	}
	select {
	case <-s.out:
	default:
	}
	s.out <- snap
}
