package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/utafrali/searchsync/internal/domain"
	"github.com/utafrali/searchsync/internal/index"
	"github.com/utafrali/searchsync/internal/service"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/httputil"
	"github.com/utafrali/searchsync/pkg/logger"
	"github.com/utafrali/searchsync/pkg/validator"
)

// AdminService is what the admin endpoints need from the sync service.
type AdminService interface {
	RunFullSync(ctx context.Context, t domain.IndexType) (*service.FullSyncReport, error)
	RunFullSyncAll(ctx context.Context) ([]*service.FullSyncReport, error)
	IndexStatus(ctx context.Context) (*service.IndexStatus, error)
}

// AdminHandler serves the /admin endpoints.
type AdminHandler struct {
	service     AdminService
	syncTimeout time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup

	// stopped is cancelled by Close and aborts running background syncs.
	stopped context.Context
	stop    context.CancelFunc
}

// NewAdminHandler creates a new admin HTTP handler. Background syncs are
// bounded by syncTimeout and cancelled by Close.
func NewAdminHandler(svc AdminService, syncTimeout time.Duration, logger *slog.Logger) *AdminHandler {
	stopped, stop := context.WithCancel(context.Background())
	return &AdminHandler{
		service:     svc,
		syncTimeout: syncTimeout,
		logger:      logger,
		stopped:     stopped,
		stop:        stop,
	}
}

// SyncRequest is the optional JSON body of POST /admin/sync.
type SyncRequest struct {
	IndexType string `json:"index_type" validate:"omitempty,oneof=products reviews"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// Sync handles POST /admin/sync. The full sync runs in the background and
// its outcome only reaches logs and metrics.
func (h *AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<10)

	var req SyncRequest
	if err := validator.DecodeOptionalAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	l := logger.WithContext(ctx, h.logger)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, h.syncTimeout)
		defer cancel()
		unhook := context.AfterFunc(h.stopped, cancel)
		defer unhook()

		var err error
		if req.IndexType == "" {
			_, err = h.service.RunFullSyncAll(ctx)
		} else {
			_, err = h.service.RunFullSync(ctx, domain.IndexType(req.IndexType))
		}
		if err != nil {
			l.ErrorContext(ctx, "background full sync failed",
				slog.String("index_type", req.IndexType),
				slog.String("error", err.Error()),
			)
		}
	}()

	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Sync in progress"})
}

// IndexStatus handles GET /admin/index-status.
func (h *AdminHandler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.IndexStatus(r.Context())
	if err != nil {
		httputil.WriteError(w, r, indexError(err), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// Wait blocks until every background sync started by Sync has finished.
func (h *AdminHandler) Wait() {
	h.wg.Wait()
}

// Close cancels running background syncs and waits for them to return.
// Syncs requested afterwards are cancelled immediately.
func (h *AdminHandler) Close() {
	h.stop()
	h.wg.Wait()
}

// indexError maps index and input failures to HTTP errors.
func indexError(err error) error {
	switch {
	case errors.Is(err, index.ErrTransport):
		return apperrors.ServiceUnavailable("search index", err)
	case errors.Is(err, domain.ErrUnknownIndexType):
		return apperrors.InvalidInput(err.Error())
	default:
		return err
	}
}
