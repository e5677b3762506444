package application

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"derivatio-energy/internal/observability/metrics"
	simulation "derivatio-energy/internal/simulation/domain"
)

const defaultWorkers = 4

// BatchItem is the outcome of one request in a batch.
type BatchItem struct {
	Request    Request
	Simulation *simulation.Simulation
	Err        error
}

// BatchRunner runs independent simulations on a bounded number of workers.
type BatchRunner struct {
	service *Service
	workers int
}

// NewBatchRunner constructs a BatchRunner.
func NewBatchRunner(service *Service, workers int) (*BatchRunner, error) {
	if service == nil {
		return nil, errors.New("batch runner: nil service")
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &BatchRunner{service: service, workers: workers}, nil
}

// RunAll stores one simulation per request. Items come back in request order;
// one request failing does not stop the others.
func (b *BatchRunner) RunAll(ctx context.Context, organizationID, actor string, reqs []Request) []BatchItem {
	return b.runAll(ctx, organizationID, actor, reqs, metrics.ModeStored)
}

func (b *BatchRunner) runAll(ctx context.Context, organizationID, actor string, reqs []Request, mode string) []BatchItem {
	items := make([]BatchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, req := range reqs {
		i, req := i, req
		items[i].Request = req
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			items[i].Simulation, items[i].Err = b.service.runAndStore(ctx, organizationID, actor, req, mode)
			return nil
		})
	}
	_ = g.Wait()
	return items
}
