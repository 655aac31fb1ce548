// internal/app/features/profile/handler.go
package profile

import (
	uierrors "github.com/dalemusser/campushub/internal/app/features/errors"
	userstore "github.com/dalemusser/campushub/internal/app/store/users"
	"go.uber.org/zap"
)

// Handler owns the public profile page and the self-service profile
// editor.
type Handler struct {
	Users  *userstore.Store
	Log    *zap.Logger
	ErrLog *uierrors.ErrorLogger
}

// NewHandler constructs a profile Handler.
func NewHandler(users *userstore.Store, errLog *uierrors.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		Users:  users,
		Log:    logger,
		ErrLog: errLog,
	}
}
