// Package jobqueue provides a background job queue with a Redis-backed
// broker and an in-process fallback behind one set of contracts.
//
// The package is organised around four main components:
//
//   - Queue    — adds jobs, inspects them, and controls queue state
//   - Worker   — claims eligible jobs and dispatches them to a Processor
//   - Provider — resolves configuration into exactly one backend
//   - Service  — the facade applications talk to; owns the registry,
//     workers, and metrics
//
// Both backends implement the same Queue and Worker contracts, so
// producers and processors never know which one is active. The Redis
// backend persists jobs in the broker and shares them across processes;
// the memory backend keeps them in process and loses them on restart.
// When Redis is requested but unreachable, the provider degrades to the
// memory backend (if fallback is enabled) so the application still
// starts, and the selection records that the degradation happened.
//
// # Usage
//
//	import (
//	    "context"
//
//	    "github.com/dmitrymomot/queuekit/pkg/jobqueue"
//	    redisconn "github.com/dmitrymomot/queuekit/pkg/redis"
//	)
//
//	type WelcomeEmail struct {
//	    UserID int64 `json:"user_id"`
//	}
//
//	func run(ctx context.Context, cfg jobqueue.Config, redisCfg redisconn.Config) error {
//	    svc := jobqueue.New(cfg, redisCfg)
//	    if err := svc.Initialize(ctx); err != nil {
//	        return err
//	    }
//	    defer svc.CloseAll()
//
//	    emails, err := svc.RegisterQueue("emails")
//	    if err != nil {
//	        return err
//	    }
//
//	    _, err = svc.RegisterProcessor(ctx, "emails", func(ctx context.Context, job *jobqueue.Job) (any, error) {
//	        var payload WelcomeEmail
//	        if err := json.Unmarshal(job.Data, &payload); err != nil {
//	            return nil, err
//	        }
//	        return nil, sendWelcomeEmail(ctx, payload.UserID)
//	    })
//	    if err != nil {
//	        return err
//	    }
//
//	    _, err = emails.Add(ctx, "welcome", WelcomeEmail{UserID: 42},
//	        jobqueue.WithMaxAttempts(5),
//	        jobqueue.WithJobDelay(time.Minute),
//	    )
//	    return err
//	}
//
// # Job lifecycle
//
// A job moves through waiting (or delayed when scheduled for later),
// active while a processor runs it, and finally completed or failed.
// Failed attempts below MaxAttempts are rescheduled with the job's
// backoff policy; only an exhausted job is terminally failed. Retention
// options control how long terminal jobs are kept.
//
// # Events and metrics
//
// Each queue exposes process-local lifecycle events via Subscribe, and
// workers report to a Tracker whose counters feed Service.Health and the
// optional Prometheus Collector.
package jobqueue
