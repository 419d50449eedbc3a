package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dunmininu/oms-trading/internal/apperr"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// fail maps classified service errors onto their HTTP status. Untyped
// errors surface as 502 so infrastructure faults are distinguishable
// from rejected requests.
func fail(c *gin.Context, err error) {
	if kind := apperr.KindOf(err); kind != "" {
		Error(c, apperr.HTTPStatus(err), err.Error(), map[string]any{"kind": string(kind)})
		return
	}
	Error(c, http.StatusBadGateway, err.Error(), nil)
}
