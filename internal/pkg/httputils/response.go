// Package httputils provides HTTP utility functions.
package httputils

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/okr-assistant/pkg/errors"
	"github.com/kart-io/okr-assistant/pkg/infra/middleware"
	"github.com/kart-io/okr-assistant/pkg/response"
)

// WriteResponse writes the response to the client.
// It handles both success and error cases, ensuring consistent response format.
func WriteResponse(c *gin.Context, err error, data any) {
	requestID := middleware.GetRequestID(c.Request.Context())

	if err != nil {
		e := errors.FromError(err)
		if e.HTTPStatus() >= 500 {
			logger.Errorw("request failed",
				"request_id", requestID,
				"path", c.FullPath(),
				"code", e.Code,
				"error", err.Error(),
			)
		}
		resp := response.Err(e, Lang(c)).WithRequestID(requestID)
		defer response.Release(resp)
		c.JSON(resp.HTTPStatus(), resp)
		return
	}

	resp := response.Success(data).WithRequestID(requestID)
	defer response.Release(resp)
	c.JSON(resp.HTTPStatus(), resp)
}

// Lang picks the message language from Accept-Language: "zh" for any Chinese
// tag, otherwise English.
func Lang(c *gin.Context) string {
	if strings.HasPrefix(strings.ToLower(c.GetHeader("Accept-Language")), "zh") {
		return "zh"
	}
	return "en"
}
