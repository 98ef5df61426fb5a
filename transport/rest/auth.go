package rest

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rocketscienceinc/fading-tictactoe-backend/internal/apperror"
)

const (
	bearerPrefix = "Bearer "
	playerIDKey  = "playerID"
)

type signUpRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
	Token   string `json:"token,omitempty"`
}

func (that *Server) signUp(c echo.Context) error {
	var req signUpRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := that.users.SignUp(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	return c.JSON(http.StatusCreated, authResponse{Message: "User created", Email: user.Email})
}

func (that *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := that.users.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	token, err := that.auth.GenerateToken(user.Email)
	if err != nil {
		return err //nolint: wrapcheck // classified by handleError
	}

	return c.JSON(http.StatusOK, authResponse{Message: "Login successful", Email: user.Email, Token: token})
}

// requireBearer resolves the player from the Authorization header.
func (that *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)

		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || token == "" {
			return apperror.ErrUnauthorized
		}

		playerID, err := that.auth.ParseToken(token)
		if err != nil {
			return err //nolint: wrapcheck // classified by handleError
		}

		c.Set(playerIDKey, playerID)

		return next(c)
	}
}

func playerIDFrom(c echo.Context) string {
	playerID, _ := c.Get(playerIDKey).(string)
	return playerID
}
