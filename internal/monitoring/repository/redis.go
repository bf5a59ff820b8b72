package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/DimaJoyti/priceguard/internal/monitoring/domain"
)

// RedisProductRepository stores Product rows as JSON blobs keyed by id.
// Products are read on nearly every worker iteration and written once per
// observation, so a flat key with no secondary index is sufficient.
type RedisProductRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisProductRepository(client *redis.Client, logger *zap.Logger) *RedisProductRepository {
	return &RedisProductRepository{client: client, logger: logger}
}

func (r *RedisProductRepository) key(id string) string { return "priceguard:product:" + id }

func (r *RedisProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	data, err := r.client.Get(ctx, r.key(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("product not found: %s", id)
		}
		return nil, fmt.Errorf("redis get product: %w", err)
	}
	var p domain.Product
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

func (r *RedisProductRepository) Save(ctx context.Context, p *domain.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	if err := r.client.Set(ctx, r.key(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set product: %w", err)
	}
	return nil
}

// RedisConfigRepository stores MonitoringConfig rows keyed by product id,
// plus a sorted set on nextScheduled for DueForScheduling's range scan.
type RedisConfigRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisConfigRepository(client *redis.Client, logger *zap.Logger) *RedisConfigRepository {
	return &RedisConfigRepository{client: client, logger: logger}
}

func (r *RedisConfigRepository) key(productID string) string {
	return "priceguard:config:" + productID
}

const dueSetKey = "priceguard:config:due"
const activeSetKey = "priceguard:config:active"

func (r *RedisConfigRepository) GetByProductID(ctx context.Context, productID string) (*domain.MonitoringConfig, error) {
	data, err := r.client.Get(ctx, r.key(productID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("monitoring config not found: %s", productID)
		}
		return nil, fmt.Errorf("redis get config: %w", err)
	}
	var c domain.MonitoringConfig
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func (r *RedisConfigRepository) Save(ctx context.Context, c *domain.MonitoringConfig) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.key(c.ProductID), data, 0)
	if c.Active {
		pipe.SAdd(ctx, activeSetKey, c.ProductID)
	} else {
		pipe.SRem(ctx, activeSetKey, c.ProductID)
	}
	if c.Active && c.NextScheduled != nil {
		pipe.ZAdd(ctx, dueSetKey, &redis.Z{Score: float64(c.NextScheduled.Unix()), Member: c.ProductID})
	} else {
		pipe.ZRem(ctx, dueSetKey, c.ProductID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save config: %w", err)
	}
	return nil
}

func (r *RedisConfigRepository) DueForScheduling(ctx context.Context, asOf time.Time, limit int) ([]*domain.MonitoringConfig, error) {
	ids, err := r.client.ZRangeByScore(ctx, dueSetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(asOf.Unix(), 10),
		Count: int64(limit * 4), // overselect, then sort by priority below
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore due configs: %w", err)
	}

	configs := make([]*domain.MonitoringConfig, 0, len(ids))
	for _, id := range ids {
		c, err := r.GetByProductID(ctx, id)
		if err != nil {
			r.logger.Warn("dropping due config with missing record", zap.String("product_id", id), zap.Error(err))
			continue
		}
		configs = append(configs, c)
	}

	sort.SliceStable(configs, func(i, j int) bool {
		if configs[i].PriorityScore != configs[j].PriorityScore {
			return configs[i].PriorityScore < configs[j].PriorityScore
		}
		return configs[i].NextScheduled.Before(*configs[j].NextScheduled)
	})
	if len(configs) > limit {
		configs = configs[:limit]
	}
	return configs, nil
}

// claimDueScript removes each candidate member from the due set one at a
// time and collects the members that were actually still present, so a
// caller can tell exactly which products it won versus lost to a
// concurrent claimant. Redis runs the whole script single-threaded, so the
// per-member ZREM outcomes are never interleaved with another claim.
var claimDueScript = redis.NewScript(`
local claimed = {}
for i, member in ipairs(ARGV) do
	if redis.call('ZREM', KEYS[1], member) == 1 then
		table.insert(claimed, member)
	end
end
return claimed
`)

// ClaimDue atomically removes productIDs from the due set via a Lua
// script and reports which ones were actually still members, i.e. which
// this call claimed. A concurrent ClaimDue racing over an overlapping
// product list can win at most the members still present when its script
// runs; every other caller sees them already gone.
func (r *RedisConfigRepository) ClaimDue(ctx context.Context, productIDs []string) ([]string, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}

	res, err := claimDueScript.Run(ctx, r.client, []string{dueSetKey}, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis claim due configs: %w", err)
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("redis claim due configs: unexpected script result type %T", res)
	}
	claimed := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			claimed = append(claimed, s)
		}
	}
	return claimed, nil
}

func (r *RedisConfigRepository) Active(ctx context.Context, offset, limit int) ([]*domain.MonitoringConfig, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers active configs: %w", err)
	}
	sort.Strings(ids)
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	configs := make([]*domain.MonitoringConfig, 0, end-offset)
	for _, id := range ids[offset:end] {
		c, err := r.GetByProductID(ctx, id)
		if err != nil {
			continue
		}
		configs = append(configs, c)
	}
	return configs, nil
}

// RedisTaskRepository stores Task rows plus a pending-tasks sorted set
// ordered by (priority, scheduledTime) via a composite score, and an
// hour-of-day counter hash for distributeLoad's probing.
type RedisTaskRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisTaskRepository(client *redis.Client, logger *zap.Logger) *RedisTaskRepository {
	return &RedisTaskRepository{client: client, logger: logger}
}

func (r *RedisTaskRepository) key(id string) string { return "priceguard:task:" + id }

const pendingTasksKey = "priceguard:tasks:pending"

// compositeScore packs priority into the high bits and the scheduled-time
// unix seconds into the low bits so ZRANGE naturally yields
// (priority, scheduledTime) order.
func compositeScore(priority int, scheduledTime time.Time) float64 {
	return float64(priority)*1e10 + float64(scheduledTime.Unix())
}

func (r *RedisTaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	data, err := r.client.Get(ctx, r.key(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("task not found: %s", id)
		}
		return nil, fmt.Errorf("redis get task: %w", err)
	}
	var t domain.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

func (r *RedisTaskRepository) Save(ctx context.Context, t *domain.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.key(t.ID), data, 0)
	if t.Status == domain.TaskStatusPending {
		pipe.ZAdd(ctx, pendingTasksKey, &redis.Z{Score: compositeScore(t.Priority, t.ScheduledTime), Member: t.ID})
		hourKey := fmt.Sprintf("priceguard:tasks:hour:%s", t.ScheduledTime.Format("2006-01-02"))
		pipe.HIncrBy(ctx, hourKey, strconv.Itoa(t.ScheduledTime.Hour()), 1)
		pipe.Expire(ctx, hourKey, 48*time.Hour)
	} else {
		pipe.ZRem(ctx, pendingTasksKey, t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save task: %w", err)
	}
	return nil
}

func (r *RedisTaskRepository) Pending(ctx context.Context, limit int) ([]*domain.Task, error) {
	ids, err := r.client.ZRange(ctx, pendingTasksKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange pending tasks: %w", err)
	}
	tasks := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetByID(ctx, id)
		if err != nil {
			r.logger.Warn("dropping pending task with missing record", zap.String("task_id", id), zap.Error(err))
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (r *RedisTaskRepository) CountByHour(ctx context.Context, dayStart time.Time) (map[int]int, error) {
	hourKey := fmt.Sprintf("priceguard:tasks:hour:%s", dayStart.Format("2006-01-02"))
	raw, err := r.client.HGetAll(ctx, hourKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall hour counts: %w", err)
	}
	counts := make(map[int]int, len(raw))
	for hourStr, countStr := range raw {
		hour, err := strconv.Atoi(hourStr)
		if err != nil {
			continue
		}
		count, err := strconv.Atoi(countStr)
		if err != nil {
			continue
		}
		counts[hour] = count
	}
	return counts, nil
}

// RedisObservationRepository stores ObservationResult rows plus a sorted
// set per product ordered by observedAt for LatestForProduct.
type RedisObservationRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisObservationRepository(client *redis.Client, logger *zap.Logger) *RedisObservationRepository {
	return &RedisObservationRepository{client: client, logger: logger}
}

func (r *RedisObservationRepository) key(id string) string { return "priceguard:observation:" + id }
func (r *RedisObservationRepository) productIndexKey(productID string) string {
	return "priceguard:observations:by_product:" + productID
}

func (r *RedisObservationRepository) Save(ctx context.Context, obs *domain.ObservationResult) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.key(obs.ID), data, 30*24*time.Hour) // default retention window
	pipe.ZAdd(ctx, r.productIndexKey(obs.ProductID), &redis.Z{
		Score: float64(obs.ObservedAt.Unix()), Member: obs.ID,
	})
	pipe.Expire(ctx, r.productIndexKey(obs.ProductID), 30*24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save observation: %w", err)
	}
	return nil
}

func (r *RedisObservationRepository) LatestForProduct(ctx context.Context, productID string) (*domain.ObservationResult, error) {
	ids, err := r.client.ZRevRange(ctx, r.productIndexKey(productID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange latest observation: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := r.client.Get(ctx, r.key(ids[0])).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get observation: %w", err)
	}
	var obs domain.ObservationResult
	if err := json.Unmarshal([]byte(data), &obs); err != nil {
		return nil, fmt.Errorf("unmarshal observation: %w", err)
	}
	return &obs, nil
}

// RecentSince returns the ObservationResults for a product observed at or
// after since, oldest first, by ranging the product's sorted-set index.
func (r *RedisObservationRepository) RecentSince(ctx context.Context, productID string, since time.Time) ([]*domain.ObservationResult, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.productIndexKey(productID), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore recent observations: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget recent observations: %w", err)
	}

	out := make([]*domain.ObservationResult, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // expired between the index scan and the MGET
		}
		var obs domain.ObservationResult
		if err := json.Unmarshal([]byte(s), &obs); err != nil {
			return nil, fmt.Errorf("unmarshal observation: %w", err)
		}
		out = append(out, &obs)
	}
	return out, nil
}

// RedisViewRepository counts product-detail views with a plain INCR
// counter, mirroring RedisRetailerCounters.
type RedisViewRepository struct {
	client *redis.Client
}

func NewRedisViewRepository(client *redis.Client) *RedisViewRepository {
	return &RedisViewRepository{client: client}
}

func (r *RedisViewRepository) key(productID string) string {
	return "priceguard:views:" + productID
}

func (r *RedisViewRepository) Increment(ctx context.Context, productID string) error {
	if err := r.client.Incr(ctx, r.key(productID)).Err(); err != nil {
		return fmt.Errorf("redis incr view counter: %w", err)
	}
	return nil
}

func (r *RedisViewRepository) Count(ctx context.Context, productID string) (int, error) {
	val, err := r.client.Get(ctx, r.key(productID)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get view counter: %w", err)
	}
	return val, nil
}

// RedisRetailerCounters implements per-retailer running-task ceilings with
// a Lua-free check-and-increment built from INCR + conditional DECR, which
// is safe because Redis serializes single-key commands.
type RedisRetailerCounters struct {
	client *redis.Client
}

func NewRedisRetailerCounters(client *redis.Client) *RedisRetailerCounters {
	return &RedisRetailerCounters{client: client}
}

func (r *RedisRetailerCounters) key(retailer string) string {
	return "priceguard:retailer:running:" + retailer
}

func (r *RedisRetailerCounters) Increment(ctx context.Context, retailer string, ceiling int) (bool, error) {
	count, err := r.client.Incr(ctx, r.key(retailer)).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr retailer counter: %w", err)
	}
	if int(count) > ceiling {
		if _, err := r.client.Decr(ctx, r.key(retailer)).Result(); err != nil {
			return false, fmt.Errorf("redis decr retailer counter rollback: %w", err)
		}
		return false, nil
	}
	return true, nil
}

func (r *RedisRetailerCounters) Decrement(ctx context.Context, retailer string) error {
	if err := r.client.Decr(ctx, r.key(retailer)).Err(); err != nil {
		return fmt.Errorf("redis decr retailer counter: %w", err)
	}
	return nil
}

func (r *RedisRetailerCounters) Running(ctx context.Context, retailer string) (int, error) {
	val, err := r.client.Get(ctx, r.key(retailer)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get retailer counter: %w", err)
	}
	return val, nil
}
