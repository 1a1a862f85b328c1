package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"frontdesk/internal/domain"
	"frontdesk/internal/middleware"
	"frontdesk/internal/modules/orchestrator"
	"frontdesk/internal/pkg/response"
	"frontdesk/internal/pkg/validator"
	"frontdesk/internal/repository"
)

type Handler struct {
	bookings  bookingReader
	documents documentLister
	options   optionLister
	runner    actionRunner
	logger    *zap.Logger
}

func NewHandler(bookings bookingReader, documents documentLister, options optionLister, runner actionRunner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bookings:  bookings,
		documents: documents,
		options:   options,
		runner:    runner,
		logger:    logger.Named("payment_handler"),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	bookings := rg.Group("/bookings/:id")
	bookings.GET("/documents", h.ListDocuments)
	bookings.GET("/actions", h.ListActions)
	bookings.POST("/actions", h.ExecuteAction)
	bookings.POST("/actions/dismiss", h.DismissAction)
	bookings.POST("/reconcile", h.Reconcile)
}

// ListDocuments returns the financial documents recorded for the booking.
func (h *Handler) ListDocuments(c *gin.Context) {
	b, ok := h.loadBooking(c)
	if !ok {
		return
	}

	docs, err := h.documents.ListDocuments(c.Request.Context(), b.ID)
	if err != nil {
		h.logger.Error("list documents failed", zap.Int64("booking_id", b.ID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load documents")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"documents": docs})
}

// ListActions returns the actions offered for the booking and the state of
// the action in progress, if any.
func (h *Handler) ListActions(c *gin.Context) {
	b, ok := h.loadBooking(c)
	if !ok {
		return
	}

	opts, err := h.options.Options(c.Request.Context(), b)
	if err != nil {
		h.logger.Error("list actions failed", zap.Int64("booking_id", b.ID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load actions")
		return
	}
	response.Success(c, http.StatusOK, ActionsResponse{
		Booking: b,
		Options: opts,
		State:   h.runner.Snapshot(b.ID),
	})
}

func (h *Handler) ExecuteAction(c *gin.Context) {
	b, ok := h.loadBooking(c)
	if !ok {
		return
	}

	var req ExecuteActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", errs)
		return
	}

	res, err := h.runner.Execute(c.Request.Context(), b.ID, req.toActionRequest())
	if err != nil {
		h.writeError(c, b.ID, err)
		return
	}

	body := newActionResponse(res)
	switch res.Kind {
	case orchestrator.ResultSuccess, orchestrator.ResultPartial:
		response.Success(c, http.StatusOK, body)
	case orchestrator.ResultConfirmationRequired:
		response.ErrorWithDetails(c, http.StatusConflict, "CONFIRMATION_REQUIRED", res.Message, body)
	default:
		status, code := failureStatus(res)
		response.ErrorWithDetails(c, status, code, res.Message, body)
	}
}

func (h *Handler) DismissAction(c *gin.Context) {
	b, ok := h.loadBooking(c)
	if !ok {
		return
	}

	if err := h.runner.Dismiss(b.ID); err != nil {
		h.writeError(c, b.ID, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": h.runner.Snapshot(b.ID)})
}

// Reconcile pulls the provider's documents and charges for the booking and
// brings the local records up to date.
func (h *Handler) Reconcile(c *gin.Context) {
	b, ok := h.loadBooking(c)
	if !ok {
		return
	}

	report, err := h.runner.Reconcile(c.Request.Context(), b.ID)
	if err != nil {
		h.writeError(c, b.ID, err)
		return
	}
	h.logger.Info("booking reconciled",
		zap.Int64("booking_id", b.ID),
		zap.Int("documents_added", len(report.DocumentsAdded)),
		zap.Bool("payment_status_applied", report.PaymentStatusApplied),
	)
	response.Success(c, http.StatusOK, report)
}

// loadBooking resolves :id and checks the caller may act on its location.
func (h *Handler) loadBooking(c *gin.Context) (*domain.Booking, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid booking id")
		return nil, false
	}

	b, err := h.bookings.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			response.Error(c, http.StatusNotFound, "BOOKING_NOT_FOUND", "Booking not found")
			return nil, false
		}
		h.logger.Error("load booking failed", zap.Int64("booking_id", id), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load booking")
		return nil, false
	}

	claims, ok := middleware.ClaimsFrom(c)
	if !ok || !claims.CanAccess(string(b.Location)) {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Booking belongs to another location")
		return nil, false
	}
	return b, true
}

func (h *Handler) writeError(c *gin.Context, bookingID int64, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", verr.Message, gin.H{"field": verr.Field})
	case errors.Is(err, repository.ErrBookingNotFound):
		response.Error(c, http.StatusNotFound, "BOOKING_NOT_FOUND", "Booking not found")
	case errors.Is(err, orchestrator.ErrActionInProgress):
		response.Error(c, http.StatusConflict, "ACTION_IN_PROGRESS", "Another action is in progress for this booking")
	case errors.Is(err, orchestrator.ErrNotDismissed):
		response.Error(c, http.StatusConflict, "RESULT_NOT_DISMISSED", "Dismiss the previous result first")
	case domain.IsAuth(err):
		response.Error(c, http.StatusBadGateway, "BILLING_AUTH_FAILED", "Billing provider rejected the credentials")
	case domain.IsUnavailable(err):
		response.Error(c, http.StatusGatewayTimeout, "BILLING_UNAVAILABLE", "Billing provider is unavailable")
	default:
		h.logger.Error("booking action failed", zap.Int64("booking_id", bookingID), zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Action failed")
	}
}

func failureStatus(res *orchestrator.Result) (int, string) {
	if res.OutcomeUnknown() {
		return http.StatusGatewayTimeout, "OUTCOME_UNKNOWN"
	}
	var gw *domain.GatewayError
	switch {
	case domain.IsAuth(res.Err):
		return http.StatusBadGateway, "BILLING_AUTH_FAILED"
	case errors.As(res.Err, &gw) && gw.Status == http.StatusPaymentRequired:
		return http.StatusPaymentRequired, "PAYMENT_DECLINED"
	case gw != nil:
		return http.StatusUnprocessableEntity, "BILLING_REJECTED"
	}
	return http.StatusBadGateway, "BILLING_FAILED"
}
