package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dispatch-service/internal/http/middleware"
	"dispatch-service/internal/model"
	"dispatch-service/internal/service"
)

type Handler struct {
	trackingService     *service.TrackingService
	pathService         *service.PathService
	notificationService *service.NotificationService
	log                 zerolog.Logger
}

func NewHandler(
	trackingService *service.TrackingService,
	pathService *service.PathService,
	notificationService *service.NotificationService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		trackingService:     trackingService,
		pathService:         pathService,
		notificationService: notificationService,
		log:                 log,
	}
}

func (h *Handler) advanceStage(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}
	if !principal.FieldUser() {
		c.JSON(http.StatusForbidden, errorResponse("field app callers only"))
		return
	}

	assignmentID, err := parseAssignmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid assignment id"))
		return
	}

	var req struct {
		ButtonID        int      `json:"button_id" binding:"required"`
		ReservationID   int64    `json:"reservation_id"`
		ContractorID    int64    `json:"contractor_id"`
		ClaimantID      int64    `json:"claimant_id"`
		Lat             float64  `json:"lat"`
		Lng             float64  `json:"lng"`
		Timestamp       string   `json:"timestamp" binding:"required"`
		DeadMiles       *float64 `json:"dead_miles"`
		TravellingMiles *float64 `json:"travelling_miles"`
		ImageURL        *string  `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	at, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid timestamp"))
		return
	}

	result, err := h.trackingService.AdvanceStage(c.Request.Context(), service.AdvanceStageInput{
		AssignmentID:    assignmentID,
		ReservationID:   req.ReservationID,
		ContractorID:    req.ContractorID,
		ClaimantID:      req.ClaimantID,
		Button:          model.StageButton(req.ButtonID),
		Lat:             req.Lat,
		Lng:             req.Lng,
		At:              at,
		DeadMiles:       req.DeadMiles,
		TravellingMiles: req.TravellingMiles,
		ImageURL:        req.ImageURL,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) getTimeline(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	assignmentID, err := parseAssignmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid assignment id"))
		return
	}

	records, err := h.trackingService.Timeline(c.Request.Context(), assignmentID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"items": records}))
}

func (h *Handler) enterWaiting(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}
	if !principal.FieldUser() {
		c.JSON(http.StatusForbidden, errorResponse("field app callers only"))
		return
	}

	assignmentID, err := parseAssignmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid assignment id"))
		return
	}

	var req struct {
		TrackingID string  `json:"tracking_id" binding:"required"`
		Lat        float64 `json:"lat"`
		Lng        float64 `json:"lng"`
		Timestamp  string  `json:"timestamp" binding:"required"`
		Comment    string  `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	trackingID, err := uuid.Parse(strings.TrimSpace(req.TrackingID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid tracking_id"))
		return
	}
	at, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid timestamp"))
		return
	}

	rec, err := h.trackingService.EnterWaiting(c.Request.Context(), service.WaitingInput{
		AssignmentID: assignmentID,
		TrackingID:   trackingID,
		Lat:          req.Lat,
		Lng:          req.Lng,
		At:           at,
		Comment:      req.Comment,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(rec))
}

func (h *Handler) exitWaiting(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}
	if !principal.FieldUser() {
		c.JSON(http.StatusForbidden, errorResponse("field app callers only"))
		return
	}

	waitingID, err := uuid.Parse(strings.TrimSpace(c.Param("waitingId")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid waiting id"))
		return
	}

	var req struct {
		Timestamp string `json:"timestamp" binding:"required"`
		Comment   string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	at, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid timestamp"))
		return
	}

	if err := h.trackingService.ExitWaiting(c.Request.Context(), waitingID, at, req.Comment); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"status": "closed"}))
}

func (h *Handler) deleteWaiting(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	waitingID, err := uuid.Parse(strings.TrimSpace(c.Param("waitingId")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid waiting id"))
		return
	}

	affected, err := h.trackingService.DeleteWaiting(c.Request.Context(), waitingID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"deleted": affected}))
}

func (h *Handler) recordPing(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}
	if !principal.FieldUser() {
		c.JSON(http.StatusForbidden, errorResponse("field app callers only"))
		return
	}

	assignmentID, err := parseAssignmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid assignment id"))
		return
	}

	var req struct {
		TrackingID string  `json:"tracking_id" binding:"required"`
		Lat        float64 `json:"lat"`
		Lng        float64 `json:"lng"`
		Timestamp  string  `json:"timestamp" binding:"required"`
		DeadMile   bool    `json:"dead_mile"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	trackingID, err := uuid.Parse(strings.TrimSpace(req.TrackingID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid tracking_id"))
		return
	}
	at, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid timestamp"))
		return
	}

	ping, err := h.pathService.RecordPing(c.Request.Context(), service.RecordPingInput{
		AssignmentID: assignmentID,
		TrackingID:   trackingID,
		Lat:          req.Lat,
		Lng:          req.Lng,
		RecordedAt:   at,
		DeadMile:     req.DeadMile,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(ping))
}

func (h *Handler) consolidatePath(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	assignmentID, err := parseAssignmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid assignment id"))
		return
	}

	if _, err := h.pathService.ConsolidatePath(c.Request.Context(), assignmentID); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"status": "consolidated"}))
}

func (h *Handler) getPath(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	assignmentID, err := parseAssignmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid assignment id"))
		return
	}

	result, err := h.pathService.GetPath(c.Request.Context(), assignmentID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	// Malformed stored paths go back verbatim so the map client still gets
	// something to render.
	if result.Malformed {
		c.Data(http.StatusOK, "application/json", result.Raw)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"points": result.Points}))
}

func (h *Handler) liveCoordinates(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	assignmentID, err := parseAssignmentID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid assignment id"))
		return
	}

	pos, err := h.pathService.LiveCoordinates(c.Request.Context(), assignmentID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"position": pos}))
}

func (h *Handler) listNotifications(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 0)

	result, err := h.notificationService.Fetch(c.Request.Context(), principal, page, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

func (h *Handler) unreadCount(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	count, err := h.notificationService.UnreadCount(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"unread": count}))
}

func (h *Handler) deleteNotifications(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	var notificationType *model.NotificationType
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		ntype := model.NotificationType(strings.ToUpper(raw))
		notificationType = &ntype
	}

	affected, err := h.notificationService.Delete(c.Request.Context(), principal, notificationType)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"deleted": affected}))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch err {
	case service.ErrPermissionDenied:
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case service.ErrInvalidInput:
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case service.ErrNotFound:
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case service.ErrConflict:
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case service.ErrInvalidStageTransition:
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func parseAssignmentID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return fallback
}

type responseEnvelope struct {
	Data interface{} `json:"data"`
}

func successResponse(data interface{}) responseEnvelope {
	return responseEnvelope{Data: data}
}

func errorResponse(msg string) gin.H {
	return gin.H{"error": msg}
}
