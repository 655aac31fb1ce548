// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Event is one auth audit record.
type Event struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty"`
	EventType     string              `bson:"event_type"`
	Success       bool                `bson:"success"`
	UserID        *primitive.ObjectID `bson:"user_id,omitempty"`
	Username      string              `bson:"username,omitempty"`
	Provider      string              `bson:"provider,omitempty"`
	FailureReason string              `bson:"failure_reason,omitempty"`
	IP            string              `bson:"ip,omitempty"`
	CreatedAt     time.Time           `bson:"created_at"`
}

// Logger records auth events to both MongoDB and structured logs.
// A nil Logger is a no-op, so tests can pass nil.
type Logger struct {
	c      *mongo.Collection
	zapLog *zap.Logger
}

// New creates an audit Logger writing to the auth_events collection.
func New(db *mongo.Database, zapLog *zap.Logger) *Logger {
	return &Logger{c: db.Collection("auth_events"), zapLog: zapLog}
}

// getClientIP extracts the client IP from the request.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func (l *Logger) log(ctx context.Context, ev Event) {
	if l == nil {
		return
	}
	ev.CreatedAt = time.Now().UTC()

	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("event_type", ev.EventType),
		zap.Bool("success", ev.Success),
	}
	if ev.UserID != nil {
		fields = append(fields, zap.String("user_id", ev.UserID.Hex()))
	}
	if ev.Username != "" {
		fields = append(fields, zap.String("username", ev.Username))
	}
	if ev.Provider != "" {
		fields = append(fields, zap.String("provider", ev.Provider))
	}
	if ev.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", ev.FailureReason))
	}
	if ev.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}

	if l.c != nil {
		if _, err := l.c.InsertOne(ctx, ev); err != nil {
			l.zapLog.Warn("audit event insert failed", zap.Error(err))
		}
	}
}

// LoginSuccess records a successful login.
func (l *Logger) LoginSuccess(ctx context.Context, r *http.Request, userID primitive.ObjectID, username, provider string) {
	l.log(ctx, Event{
		EventType: "login",
		Success:   true,
		UserID:    &userID,
		Username:  username,
		Provider:  provider,
		IP:        getClientIP(r),
	})
}

// LoginFailed records a failed login attempt.
func (l *Logger) LoginFailed(ctx context.Context, r *http.Request, username, provider, reason string) {
	l.log(ctx, Event{
		EventType:     "login",
		Success:       false,
		Username:      username,
		Provider:      provider,
		FailureReason: reason,
		IP:            getClientIP(r),
	})
}

// ConfirmationConsumed records a consumed invitation (account created or
// grant linked).
func (l *Logger) ConfirmationConsumed(ctx context.Context, r *http.Request, userID primitive.ObjectID, username, mode string) {
	l.log(ctx, Event{
		EventType: "confirmation_" + mode,
		Success:   true,
		UserID:    &userID,
		Username:  username,
		IP:        getClientIP(r),
	})
}

// ProviderLinked records an external identity attached to an account.
func (l *Logger) ProviderLinked(ctx context.Context, r *http.Request, userID primitive.ObjectID, provider string) {
	l.log(ctx, Event{
		EventType: "provider_link",
		Success:   true,
		UserID:    &userID,
		Provider:  provider,
		IP:        getClientIP(r),
	})
}
