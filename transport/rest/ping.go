package rest

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (that *Server) ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}
