package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code    string `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type ListEnvelope[T any] struct {
	Items  []T `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondReplay answers an idempotent repeat with 200 instead of 201.
func RespondReplay(c *gin.Context, replayed bool, payload any) {
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, payload)
		return
	}
	c.JSON(http.StatusCreated, payload)
}

func RespondList[T any](c *gin.Context, items []T, limit, offset int) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, ListEnvelope[T]{Items: items, Count: len(items), Limit: limit, Offset: offset})
}

func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
