package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectOptions controla los reintentos de conexión
type ConnectOptions struct {
	Attempts     int
	InitialDelay time.Duration
	PingTimeout  time.Duration
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
	return o
}

// Connect abre el cliente de Mongo y espera a que responda al ping.
// Agotados los intentos devuelve error: sin base de datos no hay corrida.
func Connect(ctx context.Context, uri string, opts ConnectOptions) (*mongo.Client, error) {
	opts = opts.withDefaults()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	delay := opts.InitialDelay
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		err = client.Ping(pingCtx, readpref.Primary())
		cancel()
		if err == nil {
			zap.L().Info("✅ Connected to MongoDB", zap.Int("attempt", attempt))
			return client, nil
		}
		if attempt >= opts.Attempts {
			break
		}

		zap.L().Warn("MongoDB ping failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			_ = client.Disconnect(context.Background())
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	_ = client.Disconnect(context.Background())
	return nil, fmt.Errorf("mongo ping after %d attempts: %w", opts.Attempts, err)
}
