// Package kafka carries manual cache invalidation over a Kafka topic: a
// consumer that deletes the named keys and a publisher for operators.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/prefeitura-rio/api-dados-rio/internal/invalidation"
)

// Deleter is the slice of the cache store the runner needs.
type Deleter interface {
	Delete(ctx context.Context, keys ...string) error
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
}

type Runner struct {
	cfg      InvalidationConfig
	cache    Deleter
	log      *slog.Logger
	versions *keyVersions
	m        *runnerMetrics

	mu         sync.RWMutex
	partitions []int32 // nil while no session is active

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg InvalidationConfig, c Deleter, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := &Runner{
		cfg:      cfg,
		cache:    c,
		log:      opts.Logger,
		versions: newKeyVersions(cfg.DedupeSize),
	}
	r.m = newRunnerMetrics(opts.Register, func() float64 { return float64(r.versions.len()) })
	return r
}

// Start joins the consumer group and consumes in the background until ctx
// is done or Stop is called. A disabled runner does nothing.
func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled")
		return nil
	}
	if r.cache == nil {
		return errors.New("kafka runner: cache is required")
	}
	if len(r.cfg.Brokers) == 0 || r.cfg.Topic == "" {
		return errors.New("kafka runner: brokers and topic are required")
	}

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, r.cfg.sarama())
	if err != nil {
		return fmt.Errorf("kafka runner: consumer group: %w", err)
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.consume(ctx, group)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

// consume re-joins after every rebalance or error until ctx is done.
func (r *Runner) consume(ctx context.Context, group sarama.ConsumerGroup) {
	defer r.wg.Done()
	defer func() {
		if err := group.Close(); err != nil {
			r.log.Error("kafka group close", "err", err)
		}
	}()
	backoff := r.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	h := claimHandler{r}
	for ctx.Err() == nil {
		if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
			r.log.Error("kafka consume", "err", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
		}
	}
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("invalidation runner stopped")
}

// Readiness is true while a group session holds partitions. A disabled
// runner is always ready.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.cfg.Enabled {
		return true, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.partitions == nil {
		return false, nil
	}
	return true, slices.Clone(r.partitions)
}

func (r *Runner) setPartitions(p []int32) {
	r.mu.Lock()
	r.partitions = p
	r.mu.Unlock()
}

// handleMessage skips undecodable or invalid events so one bad message
// cannot wedge the partition. Only a failed delete is returned.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if !msg.Timestamp.IsZero() {
		r.m.lag.Set(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	err := json.Unmarshal(msg.Value, &ev)
	if err == nil {
		err = ev.Validate()
	}
	if err != nil {
		r.m.messages.WithLabelValues("invalid").Inc()
		r.log.WarnContext(ctx, "invalidation skipped",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	start := time.Now()
	err = r.apply(ctx, ev)
	r.m.duration.WithLabelValues(ev.Op).Observe(time.Since(start).Seconds())
	if err != nil {
		r.m.messages.WithLabelValues("error").Inc()
		return err
	}
	r.m.messages.WithLabelValues("ok").Inc()
	return nil
}

func (r *Runner) apply(ctx context.Context, ev invalidation.Event) error {
	all := ev.CacheKeys()
	del := make([]string, 0, len(all))
	for _, k := range all {
		if !r.versions.stale(k, ev.Version) {
			del = append(del, k)
		}
	}
	if skipped := len(all) - len(del); skipped > 0 {
		r.m.keys.WithLabelValues("skip_version").Add(float64(skipped))
	}
	if len(del) == 0 {
		return nil
	}
	if err := r.cache.Delete(ctx, del...); err != nil {
		return fmt.Errorf("delete %d keys: %w", len(del), err)
	}
	r.versions.record(ev.Version, del...)
	r.m.keys.WithLabelValues("delete").Add(float64(len(del)))
	r.log.InfoContext(ctx, "cache invalidated",
		"op", ev.Op, "keys", len(del), "version", ev.Version, "source", ev.Source)
	return nil
}

// claimHandler adapts Runner to sarama.ConsumerGroupHandler.
type claimHandler struct{ r *Runner }

func (h claimHandler) Setup(sess sarama.ConsumerGroupSession) error {
	parts := []int32{}
	for _, ps := range sess.Claims() {
		parts = append(parts, ps...)
	}
	slices.Sort(parts)
	h.r.setPartitions(parts)
	h.r.log.Info("invalidation partitions assigned", "partitions", parts)
	return nil
}

func (h claimHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.r.setPartitions(nil)
	return nil
}

// ConsumeClaim marks a message only after it was applied; a delete failure
// ends the session so the message is redelivered.
func (h claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.r.handleMessage(sess.Context(), msg); err != nil {
				return err
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}
