// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/reachinbox/bulkmail-core/internal/broker"
	"github.com/reachinbox/bulkmail-core/internal/clock"
	"github.com/reachinbox/bulkmail-core/internal/config"
	"github.com/reachinbox/bulkmail-core/internal/core"
	"github.com/reachinbox/bulkmail-core/internal/kv"
	"github.com/reachinbox/bulkmail-core/internal/logging"
	"github.com/reachinbox/bulkmail-core/internal/mailer"
	"github.com/reachinbox/bulkmail-core/internal/metrics"
	"github.com/reachinbox/bulkmail-core/internal/queue"
	"github.com/reachinbox/bulkmail-core/internal/store"
)

func main() {
	opts, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal("load config:", err)
	}

	logger, err := logging.New(opts.Debug)
	if err != nil {
		log.Fatal("build logger:", err)
	}
	defer logger.Sync()

	pg, err := store.NewPostgres(opts.StoreDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pg.Close()

	redisKV := kv.NewRedis(opts.KVAddress)
	realClock := clock.NewReal()

	var m mailer.Mailer
	if opts.MailerProvider == "sendgrid" {
		m = mailer.NewSendGridMailer(opts.SendGridAPIKey, opts.MailerFrom)
	} else {
		m = &mailer.SMTPMailer{
			Host:     opts.SMTPHost,
			Port:     opts.SMTPPort,
			Username: opts.SMTPUsername,
			Password: opts.SMTPPassword,
			UseAuth:  opts.SMTPUsername != "",
		}
	}

	q := queue.NewInMemory(pg, realClock.Now)

	var b broker.Broker
	if amqpBroker, err := broker.NewAMQP(opts.AMQPURL, logger); err != nil {
		logger.Warn("amqp broker unavailable; falling back to single-process wakeups", zap.Error(err))
		b = broker.NewLocal()
	} else {
		b = amqpBroker
	}
	defer b.Close()

	collectors := metrics.New(prometheus.DefaultRegisterer)

	c := core.New(core.Config{
		Store:             pg,
		Clock:             realClock,
		Mailer:            m,
		KV:                redisKV,
		Queue:             q,
		Broker:            b,
		Metrics:           collectors,
		Log:               logger,
		WorkerConcurrency: opts.WorkerConcurrency,
		DefaultSender:     opts.MailerFrom,
		MaxEmailsPerHour:  opts.MaxEmailsPerHour,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := c.Recover(ctx); err != nil {
		logger.Error("recover from store failed", zap.Error(err))
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logger.Warn("worker metrics server exited", zap.Error(err))
		}
	}()

	logger.Info("worker pool running", zap.Int("concurrency", opts.WorkerConcurrency))
	c.Run(ctx)
	logger.Info("worker pool drained, exiting")
}
