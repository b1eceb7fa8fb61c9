package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kre8/diagram-relay/internal/fulfillment"
	"github.com/kre8/diagram-relay/internal/model"
)

// FulfillmentHandler exposes the fulfillment service over HTTP.
type FulfillmentHandler struct {
	service *fulfillment.Service
}

// NewFulfillmentHandler creates a new FulfillmentHandler.
func NewFulfillmentHandler(service *fulfillment.Service) *FulfillmentHandler {
	return &FulfillmentHandler{
		service: service,
	}
}

// SubmitResponseRequest represents the request body for submitting diagram code.
type SubmitResponseRequest struct {
	Code string `json:"code" binding:"required"`
}

// RequestResponse represents a diagram request in API responses.
type RequestResponse struct {
	ID          int64   `json:"id"`
	Message     string  `json:"message"`
	DiagramType string  `json:"diagramType"`
	Format      string  `json:"format"`
	CurrentCode string  `json:"currentCode,omitempty"`
	Status      string  `json:"status"`
	Age         string  `json:"age"`
	CreatedAt   string  `json:"createdAt"`
	ProcessedAt *string `json:"processedAt,omitempty"`
}

// DiagramResponse represents a recorded response in API responses.
type DiagramResponse struct {
	ID          int64  `json:"id"`
	RequestID   int64  `json:"requestId"`
	DiagramCode string `json:"diagramCode"`
	CreatedAt   string `json:"createdAt"`
}

func toRequestResponse(r *model.Request) *RequestResponse {
	resp := &RequestResponse{
		ID:          r.ID,
		Message:     r.Message,
		DiagramType: r.DiagramType,
		Format:      r.Format,
		CurrentCode: r.CurrentCode,
		Status:      string(r.Status),
		Age:         r.Age().Round(time.Second).String(),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.ProcessedAt != nil {
		processed := r.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &processed
	}
	return resp
}

func toDiagramResponse(r *model.Response) *DiagramResponse {
	return &DiagramResponse{
		ID:          r.ID,
		RequestID:   r.RequestID,
		DiagramCode: r.DiagramCode,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}

// requestID parses the :id path parameter, writing a 400 on failure.
func requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request id: "+c.Param("id"))
		return 0, false
	}
	return id, true
}

// ListPending handles GET /api/requests - lists pending requests, oldest first.
func (h *FulfillmentHandler) ListPending(c *gin.Context) {
	reqs, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		sendStoreError(c, "list requests", err)
		return
	}

	response := make([]*RequestResponse, len(reqs))
	for i, r := range reqs {
		response[i] = toRequestResponse(r)
	}
	c.JSON(http.StatusOK, response)
}

// LatestPending handles GET /api/requests/latest - returns the newest pending request.
func (h *FulfillmentHandler) LatestPending(c *gin.Context) {
	req, err := h.service.LatestPending(c.Request.Context())
	if err != nil {
		sendStoreError(c, "get latest request", err)
		return
	}
	if req == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req))
}

// Get handles GET /api/requests/:id - returns a request that still needs an answer.
func (h *FulfillmentHandler) Get(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	req, err := h.service.GetOutstanding(c.Request.Context(), id)
	if err != nil {
		sendStoreError(c, "get request", err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req))
}

// Claim handles POST /api/requests/:id/processing - marks a request as being worked on.
func (h *FulfillmentHandler) Claim(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	req, err := h.service.Claim(c.Request.Context(), id)
	if err != nil {
		sendStoreError(c, "claim request", err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req))
}

// Submit handles POST /api/requests/:id/responses - records diagram code.
func (h *FulfillmentHandler) Submit(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var body SubmitResponseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), id, body.Code)
	if err != nil {
		sendStoreError(c, "submit response", err)
		return
	}
	c.JSON(http.StatusCreated, toDiagramResponse(resp))
}

// LatestResponse handles GET /api/requests/:id/response - returns the newest response.
func (h *FulfillmentHandler) LatestResponse(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	resp, err := h.service.LatestResponse(c.Request.Context(), id)
	if err != nil {
		sendStoreError(c, "get response", err)
		return
	}
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, toDiagramResponse(resp))
}

// Stats handles GET /api/requests/stats - counts requests by status.
func (h *FulfillmentHandler) Stats(c *gin.Context) {
	st, err := h.service.Stats(c.Request.Context())
	if err != nil {
		sendStoreError(c, "count requests", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Purge handles DELETE /api/requests?olderThanDays=N - removes old requests.
func (h *FulfillmentHandler) Purge(c *gin.Context) {
	days := model.DefaultRetentionDays
	if raw := c.Query("olderThanDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid olderThanDays: "+raw)
			return
		}
		days = n
	}

	result, err := h.service.Purge(c.Request.Context(), days)
	if err != nil {
		sendStoreError(c, "purge requests", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requests":  result.Requests,
		"responses": result.Responses,
	})
}

// RegisterRoutes registers the fulfillment routes on a Gin router group.
func (h *FulfillmentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	requests := rg.Group("/requests")
	{
		requests.GET("", h.ListPending)
		requests.DELETE("", h.Purge)
		requests.GET("/latest", h.LatestPending)
		requests.GET("/stats", h.Stats)
		requests.GET("/:id", h.Get)
		requests.POST("/:id/processing", h.Claim)
		requests.POST("/:id/responses", h.Submit)
		requests.GET("/:id/response", h.LatestResponse)
	}
}
