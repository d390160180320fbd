package httpapi

import (
	"net/http"

	"voip-platform/internal/calls"

	"github.com/gin-gonic/gin"
)

// --- Calls ---

type startCallRequest struct {
	To       string `json:"to" binding:"required,dialable"`
	CallerID string `json:"caller_id"`
}

// StartCall admits, records and dials an outbound call.
func (h Handlers) StartCall(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req startCallRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Initiator.Start(c.Request.Context(), calls.CreateRequest{
		UserID:   userID,
		To:       req.To,
		CallerID: req.CallerID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h Handlers) ListCalls(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, offset := page(c)
	list, err := h.Calls.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

func (h Handlers) GetCall(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	call, err := h.Calls.GetForUser(c.Request.Context(), userID, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// --- Caller IDs ---

type requestCallerIDRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required,dialable"`
}

type submitCodeRequest struct {
	Code string `json:"code" binding:"required,vcode"`
}

// RequestCallerID places the verification call that reads the code.
func (h Handlers) RequestCallerID(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req requestCallerIDRequest
	if !bindJSON(c, &req) {
		return
	}
	cid, err := h.CallerIDs.RequestVerification(c.Request.Context(), userID, req.PhoneNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cid)
}

func (h Handlers) SubmitCallerIDCode(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req submitCodeRequest
	if !bindJSON(c, &req) {
		return
	}
	cid, err := h.CallerIDs.SubmitCode(c.Request.Context(), userID, c.Param("caller_id"), req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cid)
}

func (h Handlers) ListCallerIDs(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.CallerIDs.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"caller_ids": list})
}

func (h Handlers) DeleteCallerID(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.CallerIDs.Delete(c.Request.Context(), userID, c.Param("caller_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
