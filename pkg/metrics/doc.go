// Package metrics provides Prometheus instrumentation for uthread schedulers.
//
// A scheduler built with sched.NewWithMetrics subscribes an Observer to its
// trace log. The observer turns lifecycle events into counter and gauge
// updates labelled with the scheduler name.
//
// # Quick Start
//
//	s, err := sched.NewWithMetrics(sched.DefaultConfig(), "main", metrics.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	config := metrics.Config{
//		Enabled:  true,
//		Registry: registry,
//	}
//	s, err := sched.NewWithMetrics(sched.DefaultConfig(), "isolated", config)
//
// Schedulers built on the same registerer share its collectors and are told
// apart by the scheduler_name label.
//
// # Available Metrics
//
//   - uthread_threads_created_total: threads created, by priority
//   - uthread_threads_finished_total: threads that exited
//   - uthread_threads_live: thread control blocks in use
//   - uthread_scheduler_context_switches_total: switches by kind
//     (terminated, swap, preempted, idle)
//   - uthread_scheduler_exhaustions_total: halts for lack of a runnable
//     thread, by reason (complete, deadlocked)
//   - uthread_scheduler_queue_length: threads in the high, low and
//     waiting queues
//   - uthread_disk_reads_total: reads by path (cache, device)
//   - uthread_disk_completions_total: completions that readied a thread
//
// Every metric carries the scheduler_name label.
//
// # Configuration
//
//	config := metrics.Config{
//		Enabled:   true,
//		Registry:  prometheus.DefaultRegisterer,
//		Namespace: "myapp",                              // Override default "uthread"
//		Labels:    prometheus.Labels{"version": "1.0"},  // Constant labels
//	}
package metrics
