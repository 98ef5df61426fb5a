package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
)

type errorResponse struct {
	Error string `json:"error"`
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{apperror.ErrNotFound, http.StatusNotFound},
	{apperror.ErrAlreadyFull, http.StatusBadRequest},
	{apperror.ErrSelfJoin, http.StatusBadRequest},
	{apperror.ErrNotYourTurn, http.StatusBadRequest},
	{apperror.ErrPositionOccupied, http.StatusBadRequest},
	{apperror.ErrInvalidPosition, http.StatusBadRequest},
	{apperror.ErrUserAlreadyExists, http.StatusBadRequest},
	{apperror.ErrMatchNotActive, http.StatusConflict},
	{apperror.ErrNotAPlayer, http.StatusForbidden},
	{apperror.ErrUnauthorized, http.StatusUnauthorized},
	{apperror.ErrInvalidCredentials, http.StatusUnauthorized},
}

// classify maps an error to a status and a client-safe message.
func classify(err error) (int, string) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	}

	for _, kind := range errorStatuses {
		if errors.Is(err, kind.err) {
			return kind.status, kind.err.Error()
		}
	}

	return http.StatusInternalServerError, "internal server error"
}

func (that *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		that.logger.Error("request failed", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorResponse{Error: message})
	}

	if err != nil {
		that.logger.Error("failed to write error response", "error", err)
	}
}
