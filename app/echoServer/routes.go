package echoServer

import (
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/wmuth/SoundGoodDB/app/echoServer/controller/auth"
	"github.com/wmuth/SoundGoodDB/app/echoServer/controller/catalog"
	"github.com/wmuth/SoundGoodDB/app/echoServer/controller/rental"
)

type C struct {
	Auth      *auth.Controller
	Catalog   *catalog.Controller
	Rental    *rental.Controller
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/v1")
	pub.POST("/users/register", c.Auth.Register)
	pub.POST("/users/login", c.Auth.Login)

	// Staff-only. The JWT identifies the operator at the front desk; the
	// acting student travels in the request body.
	staff := e.Group("/v1")
	staff.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(c.JWTSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization:Bearer ",
	}))

	// Catalog
	staff.GET("/instruments", c.Catalog.List)
	staff.GET("/instruments/:id", c.Catalog.Detail)
	staff.POST("/instruments", c.Catalog.Create)

	// Rentals
	staff.POST("/rentals", c.Rental.Request)
	staff.POST("/rentals/:id/return", c.Rental.Return)
	staff.POST("/rentals/return", c.Rental.ReturnByPair)
	staff.GET("/rentals/overdue", c.Rental.Overdue)
	staff.GET("/students/:id/rentals", c.Rental.ActiveForStudent)
}
