package main

import (
	"testing"

	"chitieu/internal/amqp"
	"chitieu/internal/config"
)

func TestTailQueueIsNotWorkerQueue(t *testing.T) {
	for _, queue := range []string{"ledger_events", "custom_worker"} {
		t.Run(queue, func(t *testing.T) {
			t.Setenv("AMQP_QUEUE", queue)
			cfg := config.Load()

			if got := tailQueue(); got == cfg.AMQPQueue {
				t.Fatalf("tail consumes from worker queue %q", got)
			}
			if tailQueue() != amqp.TransientQueue {
				t.Fatalf("tail queue = %q, want a transient queue", tailQueue())
			}
		})
	}
}
