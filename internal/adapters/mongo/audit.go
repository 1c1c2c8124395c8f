package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/cinema-reservations/internal/domain"
	"github.com/robertarktes/cinema-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
	now    func() time.Time
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
		now:    time.Now,
	}
}

type AuditLog struct {
	ID            uuid.UUID `bson:"_id"`
	Action        string    `bson:"action"`
	AccountID     int64     `bson:"account_id"`
	ReservationID string    `bson:"reservation_id"`
	Kind          string    `bson:"kind"`
	Status        string    `bson:"status"`
	CinemaID      int64     `bson:"cinema_id"`
	Timestamp     time.Time `bson:"timestamp"`
	Data          bson.M    `bson:"data,omitempty"`
}

// EnsureIndexes creates the lookup indexes used by support tooling.
func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reservation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}

func (a *AuditLogger) Record(ctx context.Context, action string, r domain.Reservation, data map[string]any) error {
	log := AuditLog{
		ID:            uuid.New(),
		Action:        action,
		AccountID:     r.AccountID,
		ReservationID: r.ID,
		Kind:          string(r.Kind),
		Status:        string(r.Status),
		CinemaID:      r.CinemaID,
		Timestamp:     a.now().UTC(),
		Data:          bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return err
	}
	return nil
}

// History returns the audit trail of one reservation, oldest first.
func (a *AuditLogger) History(ctx context.Context, reservationID string) ([]AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	cur, err := a.coll.Find(ctx, bson.M{"reservation_id": reservationID}, opts)
	if err != nil {
		return nil, err
	}
	var out []AuditLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
