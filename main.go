// Package main Soundgood instrument rental API.
//
// @title           Soundgood Rental API
// @version         1.0
// @description     Instrument rental service for the Soundgood music school.
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/wmuth/SoundGoodDB/app/echoServer"
	authctrl "github.com/wmuth/SoundGoodDB/app/echoServer/controller/auth"
	catalogctrl "github.com/wmuth/SoundGoodDB/app/echoServer/controller/catalog"
	rentalctrl "github.com/wmuth/SoundGoodDB/app/echoServer/controller/rental"
	"github.com/wmuth/SoundGoodDB/app/echoServer/validation"
	"github.com/wmuth/SoundGoodDB/config"
	authrepo "github.com/wmuth/SoundGoodDB/repository/auth"
	instrumentrepo "github.com/wmuth/SoundGoodDB/repository/instrument"
	rentalrepo "github.com/wmuth/SoundGoodDB/repository/rental"
	rulerepo "github.com/wmuth/SoundGoodDB/repository/rule"
	studentrepo "github.com/wmuth/SoundGoodDB/repository/student"
	"github.com/wmuth/SoundGoodDB/service/allocation"
	authsvc "github.com/wmuth/SoundGoodDB/service/auth"
	catalogsvc "github.com/wmuth/SoundGoodDB/service/catalog"
	"github.com/wmuth/SoundGoodDB/util/database"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ar := authrepo.New(db)
	ir := instrumentrepo.New(db)
	rr := rentalrepo.New(db)
	rur := rulerepo.New(db)
	sr := studentrepo.New(db)

	// services
	as := authsvc.New(ar, cfg.JWTSecret)
	cs := catalogsvc.New(ir)
	alloc := allocation.New(rr, ir, rur)

	// overdue sweeper, read-only
	sweeper := allocation.NewSweeper(alloc, log)
	go sweeper.Run(ctx, cfg.SweepInterval)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	catalogC := &catalogctrl.Controller{Svc: cs, V: v, Log: log}
	rentalC := &rentalctrl.Controller{Svc: alloc, Students: sr, V: v, Log: log}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:      authC,
		Catalog:   catalogC,
		Rental:    rentalC,
		JWTSecret: cfg.JWTSecret,
	})

	slog.Info("starting server", "port", cfg.Port, "env", cfg.Env)
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
