// Command redisjobstore-demo exercises the facade against a live Redis: it
// stores a job and a simple trigger, runs one acquire/fire/complete cycle,
// and prints the resulting trigger state. It plays the same role for this
// module that huaban-periodic's cmd/periodic plays for sched.Sched.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz"
	"github.com/Dox-Sweden/QuartzRedisJobStore/quartz/triggers"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/rconn"
	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/serialize"
)

func main() {
	app := &cli.App{
		Name:  "redisjobstore-demo",
		Usage: "store a job and trigger, run one acquire/fire/complete cycle",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   "127.0.0.1:6379",
				Usage:   "redis server address",
				EnvVars: []string{"REDISJOBSTORE_ADDR"},
			},
			&cli.StringFlag{
				Name:  "prefix",
				Value: "qjs",
				Usage: "key prefix",
			},
			&cli.StringFlag{
				Name:  "serializer",
				Value: "json",
				Usage: "job/trigger serializer [json, gob]",
			},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg := redisjobstore.Config{
		KeyPrefix: c.String("prefix"),
		Addr:      c.String("addr"),
	}.Defaults()

	pool := rconn.NewPool(rconn.Options{Addr: cfg.Addr})
	defer pool.Close()

	var codec serialize.Serializer = serialize.JSONSerializer{}
	if c.String("serializer") == "gob" {
		codec = serialize.GobSerializer{}
	}

	store := redisjobstore.New(cfg, pool, codec, quartz.NoopSignaler{}, redisjobstore.StdLogger{})

	ctx := context.Background()
	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	jobKey := quartz.NewJobKey("demo-job", "")
	job := quartz.JobDetail{
		Key:      jobKey,
		JobClass: "demo.PrintJob",
		Durable:  false,
	}

	triggerKey := quartz.NewTriggerKey("demo-trigger", "")
	trigger := quartz.Trigger{
		Key:       triggerKey,
		JobKey:    jobKey,
		StartTime: time.Now(),
		Schedule:  triggers.NewSimple(time.Minute),
	}
	trigger.ComputeFirstFireTime(time.Now(), nil)

	if err := store.StoreJobAndTrigger(ctx, job, trigger); err != nil {
		return fmt.Errorf("store job and trigger: %w", err)
	}
	fmt.Printf("stored %s / %s\n", jobKey, triggerKey)

	acquired, err := store.AcquireNextTriggers(ctx, time.Now(), 10, time.Minute)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	fmt.Printf("acquired %d trigger(s)\n", len(acquired))

	fired, err := store.TriggersFired(ctx, acquired)
	if err != nil {
		return fmt.Errorf("fire: %w", err)
	}

	for _, f := range fired {
		fmt.Printf("fired %s (fire instance %s)\n", f.Trigger.Key, f.FireInstanceID)
		if err := store.TriggeredJobComplete(ctx, f.Trigger, f.Job, quartz.NoInstruction); err != nil {
			return fmt.Errorf("complete: %w", err)
		}
	}

	state, err := store.GetTriggerState(ctx, triggerKey)
	if err != nil {
		return fmt.Errorf("get trigger state: %w", err)
	}
	fmt.Printf("trigger %s is now %s\n", triggerKey, state)
	return nil
}
