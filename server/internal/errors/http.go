package errors

import (
	stderrors "errors"

	"github.com/labstack/echo/v4"
)

// Response is the JSON body of a failed request.
type Response struct {
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code"`
	Details string    `json:"details,omitempty"`
}

// ToHTTP renders err as a JSON error response. Errors that are not an
// AIError render as INTERNAL.
func ToHTTP(c echo.Context, err error) error {
	var aiErr *AIError
	if !stderrors.As(err, &aiErr) {
		aiErr = Internal("internal error", err)
	}
	resp := Response{Error: aiErr.Message, Code: aiErr.Code}
	if aiErr.Cause != nil {
		resp.Details = aiErr.Cause.Error()
	}
	return c.JSON(aiErr.Code.HTTPStatus(), resp)
}
