package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/handler"
	"github.com/noah-isme/pbl-teams-api/internal/middleware"
	"github.com/noah-isme/pbl-teams-api/internal/models"
	"github.com/noah-isme/pbl-teams-api/internal/repository"
	"github.com/noah-isme/pbl-teams-api/internal/service"
	"github.com/noah-isme/pbl-teams-api/pkg/cache"
	"github.com/noah-isme/pbl-teams-api/pkg/config"
	"github.com/noah-isme/pbl-teams-api/pkg/database"
	"github.com/noah-isme/pbl-teams-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/pbl-teams-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/pbl-teams-api/pkg/middleware/requestid"
	"github.com/noah-isme/pbl-teams-api/pkg/sheets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, team list cache disabled", zap.Error(err))
		redisClient = nil
	}

	var sheetsClient sheets.Client
	googleSheets, err := sheets.NewGoogleClient(context.Background(), cfg.Sheets)
	if err != nil {
		logr.Sugar().Fatalw("failed to init google sheets client", "error", err)
	}
	if googleSheets != nil {
		sheetsClient = googleSheets
	} else {
		logr.Info("google sheets not configured, sync disabled")
	}

	validate := validator.New()

	teamRepo := repository.NewTeamRepository(db)
	userRepo := repository.NewUserRepository(db)
	academicRepo := repository.NewAcademicRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	syncService := service.NewSyncService(sheetsClient, teamRepo, userRepo, settingRepo, cacheRepo, metricsService, cfg.Sheets.Timeout, logr)
	teamService := service.NewTeamService(teamRepo, academicRepo, settingRepo, cacheRepo, syncService, metricsService, cfg.Teams.CacheTTL, logr)
	gradingService := service.NewGradingService(teamRepo, syncService, logr)
	messageService := service.NewMessageService(messageRepo, teamRepo, logr)
	academicService := service.NewAcademicService(academicRepo, logr)
	userService := service.NewUserService(userRepo, teamRepo, settingRepo, logr)
	exportService := service.NewExportService(teamRepo, nil, nil, logr)

	var verifier service.GoogleVerifier
	if v := service.NewIDTokenVerifier(cfg.Google.ClientID); v != nil {
		verifier = v
	}
	authService := service.NewAuthService(userRepo, verifier, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})

	authHandler := handler.NewAuthHandler(authService)
	academicHandler := handler.NewAcademicHandler(academicService)
	teamHandler := handler.NewTeamHandler(teamService, messageService)
	teacherHandler := handler.NewTeacherHandler(gradingService, messageService)
	adminHandler := handler.NewAdminHandler(teamService, userService, messageService, syncService, exportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/google", authHandler.GoogleLogin)
	auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)

	academic := api.Group("/academic", middleware.JWT(authService))
	academic.GET("/years", academicHandler.Years)
	academic.GET("/subjects", academicHandler.Subjects)

	student := api.Group("/student", middleware.JWT(authService), middleware.RequireRoles(models.RoleStudent))
	student.POST("/teams", teamHandler.Create)
	student.GET("/teams/my", teamHandler.MyTeam)
	student.GET("/messages", teamHandler.Messages)

	teacher := api.Group("/teacher", middleware.JWT(authService), middleware.RequireRoles(models.RoleTeacher))
	teacher.GET("/teams", teacherHandler.AssignedTeams)
	teacher.GET("/teams/:id", teacherHandler.AssignedTeam)
	teacher.POST("/grades", teacherHandler.Grade)
	teacher.POST("/messages", teacherHandler.Broadcast)

	admin := api.Group("/admin", middleware.JWT(authService), middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/teams", adminHandler.ListTeams)
	admin.GET("/teams/:id", adminHandler.GetTeam)
	admin.GET("/teams/export", adminHandler.ExportRoster)
	admin.POST("/sync/mentors", adminHandler.SyncMentors)
	admin.POST("/sync/push", adminHandler.PushTeams)
	admin.GET("/teachers", adminHandler.Teachers)
	admin.POST("/teachers", adminHandler.CreateTeacher)
	admin.GET("/messages", adminHandler.Messages)
	admin.POST("/migrations/team-status", adminHandler.MigrateTeamStatuses)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
