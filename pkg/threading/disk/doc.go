/*
Package disk simulates the block device threads block on.

A Device accepts read requests, loads the block from a Store on a small pool
of worker goroutines and raises an interrupt.Disk event per completed
request. The interrupt handler collects the completion with Complete, which
hands results back in completion order.

Stores:

  - MemoryStore keeps blocks in a map. Missing blocks read as zeros.
  - RedisStore keeps blocks as Redis strings under "<prefix>:block:<n>".

A PageCache in front of the device serves blocks that were read before, so a
cached read never blocks the calling thread.

Basic usage:

	ctrl := interrupt.NewController()
	dev, err := disk.NewDevice(disk.NewMemoryStore(512), ctrl, disk.DefaultConfig())
	if err != nil {
		return err
	}
	defer dev.Close()

	ctrl.Handle(interrupt.Disk, func(interrupt.Kind) {
		req, _ := dev.Complete()
		fmt.Println(req.Block, len(req.Data))
	})
	_ = dev.Submit(&disk.Request{Block: 7})

Redis-backed blocks:

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	store, err := disk.NewRedisStore(disk.RedisConfig{Redis: rdb, Prefix: "uthread"})
*/
package disk
