package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"factory/internal/api/handlers"
	"factory/internal/api/middleware"
	"factory/internal/codeimage"
	"factory/internal/deployment"
	"factory/internal/identity"
	"factory/internal/ledger"
	"factory/internal/scheduler"
	"factory/internal/store"
	"factory/internal/strategy"
)

// SetupRouter wires every Factory component into the HTTP API surface.
func SetupRouter(
	ledgerSvc *ledger.Ledger,
	machine *deployment.Machine,
	strategies *strategy.Registry,
	codeImages *codeimage.Registry,
	registry *identity.Registry,
	recScheduler *scheduler.Scheduler,
	persistent store.Store,
	jwtMiddleware *middleware.JWTMiddleware,
	logger *logrus.Logger,
	ginMode string,
) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	accountHandler := handlers.NewAccountHandler(ledgerSvc, logger)
	deploymentHandler := handlers.NewDeploymentHandler(machine, logger)
	strategyHandler := handlers.NewStrategyHandler(strategies, logger)
	adminHandler := handlers.NewAdminHandler(registry, ledgerSvc, codeImages, recScheduler, persistent, logger)

	v1 := router.Group("/v1")
	{
		authorized := v1.Group("")
		authorized.Use(jwtMiddleware.Auth())
		{
			authorized.GET("/account", accountHandler.GetAccount)
			authorized.POST("/account/deposit", accountHandler.Deposit)
			authorized.POST("/account/withdraw", accountHandler.Withdraw)
			authorized.GET("/account/history", accountHandler.History)

			authorized.POST("/strategies/:kind", deploymentHandler.Deploy)
			authorized.GET("/strategies", strategyHandler.List)

			authorized.GET("/deployments", deploymentHandler.List)
			authorized.GET("/deployments/:id", deploymentHandler.Get)

			admin := authorized.Group("/admin")
			admin.Use(middleware.RequireAdmin(registry))
			{
				admin.GET("/admins", adminHandler.ListAdmins)
				admin.POST("/admins", adminHandler.AddAdmin)
				admin.DELETE("/admins/:owner", adminHandler.RemoveAdmin)

				admin.GET("/settings/fee", adminHandler.GetDeploymentFee)
				admin.PUT("/settings/fee", adminHandler.SetDeploymentFee)

				admin.POST("/code-images/:kind", adminHandler.SetCodeImage)

				admin.GET("/strategies", strategyHandler.ListAll)
				admin.GET("/deployments", adminHandler.ListAllDeployments)
				admin.GET("/deployments/archive", adminHandler.ListArchivedDeployments)
				admin.POST("/deployments/:id/force-execute", deploymentHandler.ForceExecute)

				admin.POST("/accounts/:owner/adjust", adminHandler.AdjustBalance)
				admin.POST("/withdraw", adminHandler.WithdrawICP)
				admin.POST("/timers/reset", adminHandler.ResetSystemTimers)
			}
		}
	}

	return router
}
