package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/lac-hong-legacy/lms_api/services"
)

// @title LMS API
// @version 1.0
// @description Security and abuse mitigation API for the LMS platform
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded, using process environment")
	}

	ctx, err := context.NewCtx(
		&services.RedisService{},
		&services.PostgresService{},
		&services.MonitoringService{},
		&services.KafkaService{},
		&services.MinIOService{},
		&services.EmailService{},
		&services.GeolocationService{},

		&services.JWTService{},
		&services.AuthMiddleware{},

		&services.SecurityService{},
		&services.RateLimitService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure services")
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Service stopped with error")
		return
	}
}
