package rest

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/entity"
)

type joinRequest struct {
	Code string `json:"code" validate:"required"`
}

// Position is a pointer so that cell 0 passes the required check.
// Range is left to the engine so its validation order holds.
type moveRequest struct {
	Code     string `json:"code" validate:"required"`
	Position *int   `json:"position" validate:"required"`
}

type movesResponse struct {
	Code        string              `json:"code"`
	MoveHistory []entity.MoveRecord `json:"move_history"`
}

func (that *Server) createMatch(c echo.Context) error {
	match, err := that.matches.CreateMatch(c.Request().Context(), playerIDFrom(c))
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	return c.JSON(http.StatusCreated, match)
}

func (that *Server) joinMatch(c echo.Context) error {
	var req joinRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	match, err := that.matches.JoinMatch(c.Request().Context(), entity.NormalizeCode(req.Code), playerIDFrom(c))
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	return c.JSON(http.StatusOK, match)
}

func (that *Server) makeMove(c echo.Context) error {
	var req moveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	match, err := that.matches.MakeMove(c.Request().Context(), entity.NormalizeCode(req.Code), playerIDFrom(c), *req.Position)
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	return c.JSON(http.StatusOK, match)
}

func (that *Server) getMatch(c echo.Context) error {
	match, err := that.matches.GetMatch(c.Request().Context(), entity.NormalizeCode(c.Param("code")))
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	return c.JSON(http.StatusOK, match)
}

func (that *Server) getMoves(c echo.Context) error {
	match, err := that.matches.GetMatch(c.Request().Context(), entity.NormalizeCode(c.Param("code")))
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	return c.JSON(http.StatusOK, movesResponse{Code: match.Code, MoveHistory: match.History})
}

func (that *Server) subscribe(c echo.Context) error {
	that.hub.ServeWS(c.Response(), c.Request(), entity.NormalizeCode(c.Param("code")))
	return nil
}

func (that *Server) handleMCP(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request")
	}

	response := that.mcp.HandleMessage(c.Request().Context(), body)
	if response == nil {
		return c.NoContent(http.StatusAccepted)
	}

	return c.JSON(http.StatusOK, response)
}
