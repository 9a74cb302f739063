package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vnykmshr/uthread/internal/config"
	"github.com/vnykmshr/uthread/pkg/metrics"
	"github.com/vnykmshr/uthread/pkg/threading/disk"
	"github.com/vnykmshr/uthread/pkg/threading/interrupt"
	"github.com/vnykmshr/uthread/pkg/threading/sched"
)

// Options tune Build.
type Options struct {
	// Logger receives scheduler and workload logs.
	Logger logrus.FieldLogger

	// Registerer receives the metrics when the workload enables them.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Redis overrides the client built from disk.redis_addr.
	Redis redis.UniversalClient
}

// Env is a scheduler wired with the disk, cache and metrics a workload asks
// for.
type Env struct {
	System *sched.System
	Device *disk.Device
	Cache  *disk.PageCache

	redis     redis.UniversalClient
	ownsRedis bool
}

// Build creates the Env described by w. Nothing runs until the System does.
func Build(w config.Workload, opts Options) (*Env, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	cfg, err := w.SchedConfig()
	if err != nil {
		return nil, err
	}
	cfg.Logger = opts.Logger

	env := &Env{}
	if cfg.Policy.DiskWait {
		store, err := env.store(w.Disk, opts)
		if err != nil {
			env.Close()
			return nil, err
		}
		cfg.Interrupts = interrupt.NewController()
		env.Device, err = disk.NewDevice(store, cfg.Interrupts, w.DeviceConfig())
		if err != nil {
			env.Close()
			return nil, err
		}
		cfg.Disk = env.Device
		if w.Disk.CacheSize > 0 {
			env.Cache = disk.NewPageCache(w.Disk.CacheSize)
			cfg.Cache = env.Cache
		}
	}

	if w.Metrics.Enabled {
		mc := metrics.DefaultConfig()
		if opts.Registerer != nil {
			mc.Registry = opts.Registerer
		}
		if w.Metrics.Namespace != "" {
			mc.Namespace = w.Metrics.Namespace
		}
		env.System, err = sched.NewWithMetrics(cfg, w.Name, mc)
	} else {
		env.System, err = sched.New(cfg)
	}
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// store builds the backing store and writes the seed blocks.
func (e *Env) store(c config.DiskConfig, opts Options) (disk.Store, error) {
	client := opts.Redis
	if client == nil && c.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		e.ownsRedis = true
	}

	if client == nil {
		mem := disk.NewMemoryStore(c.BlockSize)
		for block, data := range c.Seed {
			mem.Save(block, []byte(data))
		}
		return mem, nil
	}

	e.redis = client
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	rc := disk.DefaultRedisConfig()
	rc.Redis = client
	if c.RedisPrefix != "" {
		rc.Prefix = c.RedisPrefix
	}
	if c.BlockSize > 0 {
		rc.BlockSize = c.BlockSize
	}
	rs, err := disk.NewRedisStore(rc)
	if err != nil {
		return nil, err
	}
	for block, data := range c.Seed {
		if err := rs.Save(ctx, block, []byte(data)); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// Close releases the device and the Redis client the Env created.
func (e *Env) Close() error {
	var errs []error
	if e.Device != nil {
		errs = append(errs, e.Device.Close())
	}
	if e.redis != nil && e.ownsRedis {
		errs = append(errs, e.redis.Close())
	}
	return errors.Join(errs...)
}
