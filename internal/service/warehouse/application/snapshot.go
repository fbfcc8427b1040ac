package application

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"mercato/internal/pkg/logger"
	"mercato/internal/service/warehouse/domain"
	"mercato/internal/service/warehouse/domain/port"
	"mercato/internal/zookeeper"
)

// SnapshotJob 周期性地聚合所有仓库的商品总量并发布快照。
// 输出只用于展示缓存，是尽力而为的切面读，不参与任何正确性判断，
// 可以和预占并发跑。多实例部署时通过 ZooKeeper 选主保证单飞。
type SnapshotJob struct {
	repo      domain.WarehouseRepository
	publisher port.SnapshotPublisher
	elector   *zookeeper.Elector
	nodeID    string
	interval  time.Duration
	tracer    trace.Tracer
}

func NewSnapshotJob(repo domain.WarehouseRepository, publisher port.SnapshotPublisher, elector *zookeeper.Elector, nodeID string, interval time.Duration, tracer trace.Tracer) *SnapshotJob {
	return &SnapshotJob{
		repo:      repo,
		publisher: publisher,
		elector:   elector,
		nodeID:    nodeID,
		interval:  interval,
		tracer:    tracer,
	}
}

// Run 阻塞运行直到 ctx 取消。实际部署中放在凌晨低峰跑大周期。
func (j *SnapshotJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	logger.Logger.Info().Dur("interval", j.interval).Msg("inventory snapshot job started")

	for {
		select {
		case <-ticker.C:
			j.tick(ctx)
		case <-ctx.Done():
			logger.Logger.Info().Msg("inventory snapshot job stopped")
			return
		}
	}
}

func (j *SnapshotJob) tick(ctx context.Context) {
	if j.elector != nil {
		leader, err := j.elector.IsLeader(j.nodeID)
		if err != nil {
			logger.Logger.Error().Err(err).Msg("snapshot leader election failed, skipping round")
			return
		}
		if !leader {
			return
		}
	}

	ctx, span := j.tracer.Start(ctx, "warehouse.GatherProductQuantities")
	defer span.End()

	quantities, err := j.gather(ctx)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("snapshot aggregation failed")
		return
	}

	if err := j.publisher.PublishSnapshot(ctx, quantities); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Error().Err(err).Msg("snapshot publish failed")
		return
	}
	logger.Ctx(ctx).Info().Int("products", len(quantities)).Msg("inventory snapshot published")
}

// gather 逐仓库加载并汇总数量，仓库间并发、汇总加锁。
func (j *SnapshotJob) gather(ctx context.Context) (map[string]int, error) {
	ids, err := j.repo.IDs(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	totals := make(map[string]int)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, warehouseID := range ids {
		g.Go(func() error {
			warehouse, err := j.repo.FindByID(gctx, warehouseID)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, product := range warehouse.Inventory {
				totals[product.ProductID] += product.Quantity
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}
