// Package live applies real-time change files to a running graph and
// publishes the recomputed distances.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ritzau/navisys/pkg/logging"
	"github.com/ritzau/navisys/pkg/network"
	"github.com/ritzau/navisys/pkg/pubsub"
	"github.com/ritzau/navisys/pkg/routing"
	"github.com/ritzau/navisys/pkg/watcher"
)

// Runner reloads a change file and applies it to a graph
type Runner struct {
	graph     *routing.Graph[string]
	publisher pubsub.Publisher
	path      string
	source    string
	mu        sync.Mutex // one reload at a time

	// Report, when set, is called after every watch-triggered reload
	Report func(result *routing.UpdateResult[string], err error)
}

// NewRunner creates a runner recomputing distances from source.
// publisher may be nil.
func NewRunner(g *routing.Graph[string], publisher pubsub.Publisher, path, source string) *Runner {
	return &Runner{
		graph:     g,
		publisher: publisher,
		path:      path,
		source:    source,
	}
}

// Apply loads the change file and applies it. A negative cycle is returned
// as an error together with the (non-final) result.
func (r *Runner) Apply(ctx context.Context, reason string) (*routing.UpdateResult[string], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batchID := uuid.NewString()
	logging.InfoContext(ctx, "applying real-time changes", "reason", reason, "batch", batchID, "path", r.path)

	changes, err := network.LoadChanges(r.path)
	if err != nil {
		r.publish(batchID, reason, nil, err)
		return nil, fmt.Errorf("loading changes: %w", err)
	}

	result, err := r.graph.ApplyRealTimeUpdates(r.source, changes)
	r.publish(batchID, reason, result, err)
	if err != nil {
		return result, fmt.Errorf("applying changes from %s: %w", r.path, err)
	}
	return result, nil
}

// Watch applies the change file whenever it is written, until ctx is done.
// Errors from individual reloads are logged and do not stop the watch.
func (r *Runner) Watch(ctx context.Context, events <-chan watcher.ChangeEvent) {
	for event := range events {
		analysis := watcher.AnalyzeChanges(event)
		if !analysis.NeedReload {
			logging.Info("ignoring change file event", "reason", analysis.Reason)
			continue
		}

		result, err := r.Apply(ctx, analysis.Reason)
		if err != nil {
			if errors.Is(err, routing.ErrNegativeCycle) {
				logging.Warn("distances not final", "error", err)
			} else {
				logging.Error("real-time update failed", "error", err)
			}
		}
		if r.Report != nil && result != nil {
			r.Report(result, err)
		}
	}
}

func (r *Runner) publish(batchID, reason string, result *routing.UpdateResult[string], err error) {
	if r.publisher == nil {
		return
	}

	update := pubsub.DistanceUpdate{Start: r.source, Reason: reason, BatchID: batchID}
	if result != nil {
		update.Distances = pubsub.EncodeDistances(result.Distances)
		update.Applied = pubsub.EdgeRefs(result.Applied)
		update.Skipped = pubsub.EdgeRefs(result.Skipped)
	}
	if err != nil {
		update.Error = err.Error()
	}

	if perr := r.publisher.Publish(pubsub.TopicDistances, "recomputed", update); perr != nil {
		logging.Warn("failed to publish distances", "error", perr)
	}
}
