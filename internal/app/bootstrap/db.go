// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/chatschema/internal/app/system/indexes"
	"github.com/dalemusser/chatschema/internal/app/system/timeouts"
	"github.com/dalemusser/chatschema/internal/domain/schema"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// ConnectDB opens the MongoDB client and makes sure the server answers.
// With mongo_wait set it keeps pinging until the budget runs out; otherwise
// one failed ping ends the run with a *indexes.ConnectionError.
func ConnectDB(ctx context.Context, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetConnectTimeout(timeouts.Connect()).
		SetServerSelectionTimeout(timeouts.Connect()).
		SetAppName("chatschema")

	connectCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Connect(), logger, "mongo connect")
	client, err := mongo.Connect(connectCtx, opts)
	cancel()
	if err != nil {
		logger.Error("mongo connect failed", zap.Error(err))
		return DBDeps{}, &indexes.ConnectionError{Op: "connect", Err: err}
	}

	if err := waitForMongo(ctx, client, appCfg.MongoWait, appCfg.MongoWaitInterval, logger); err != nil {
		discCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown())
		_ = client.Disconnect(discCtx)
		cancel()
		return DBDeps{}, err
	}

	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))
	return DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
	}, nil
}

// waitForMongo pings until the server answers or the wait budget is spent.
// A zero wait means exactly one attempt.
func waitForMongo(ctx context.Context, p pinger, wait, interval time.Duration, logger *zap.Logger) error {
	deadline := time.Now().Add(wait)
	attempt := 0
	for {
		attempt++
		pingCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Connect(), logger, "mongo ping")
		err := p.Ping(pingCtx, readpref.Primary())
		cancel()
		if err == nil {
			if attempt > 1 {
				logger.Info("MongoDB is up", zap.Int("attempts", attempt))
			}
			return nil
		}

		if wait <= 0 || time.Now().Add(interval).After(deadline) {
			logger.Error("mongo ping failed",
				zap.Int("attempts", attempt),
				zap.Error(err))
			return &indexes.ConnectionError{Op: "ping", Err: err}
		}

		logger.Warn("MongoDB not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", interval),
			zap.Error(err))

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return &indexes.ConnectionError{Op: "ping", Err: errors.Join(ctx.Err(), err)}
		case <-t.C:
		}
	}
}

// EnsureSchema creates the chat service collections and unique indexes.
func EnsureSchema(ctx context.Context, deps DBDeps, rec indexes.Recorder, logger *zap.Logger) error {
	var target indexes.Target
	if deps.MongoDatabase != nil {
		target = indexes.NewMongoTarget(deps.MongoDatabase, logger, rec)
	}

	start := time.Now()
	if err := indexes.Initialize(ctx, target); err != nil {
		logger.Error("schema initialization failed",
			zap.String("took", time.Since(start).String()),
			zap.Error(err))
		return err
	}
	logger.Info("schema initialized", zap.String("took", time.Since(start).String()))
	return nil
}

// VerifySchema reads the current schema and compares it with the desired one.
func VerifySchema(ctx context.Context, deps DBDeps, logger *zap.Logger) (indexes.Report, error) {
	if deps.MongoDatabase == nil {
		return indexes.Report{}, &indexes.ConnectionError{Op: "verify", Err: indexes.ErrNoConnection}
	}
	rep, err := indexes.Verify(ctx, indexes.NewMongoTarget(deps.MongoDatabase, logger, nil), schema.Default())
	rep.Database = deps.MongoDatabase.Name()
	return rep, err
}
