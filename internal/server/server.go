package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sokoline/sokoline/internal/config"
	"github.com/sokoline/sokoline/internal/effects"
	"github.com/sokoline/sokoline/internal/gateway"
	"github.com/sokoline/sokoline/internal/notification"
	"github.com/sokoline/sokoline/internal/observability"
	obsmiddleware "github.com/sokoline/sokoline/internal/observability/logger"
	obstracing "github.com/sokoline/sokoline/internal/observability/tracing"
	"github.com/sokoline/sokoline/internal/order"
	orderdomain "github.com/sokoline/sokoline/internal/order/domain"
	"github.com/sokoline/sokoline/internal/reconcile"
	"github.com/sokoline/sokoline/internal/transaction"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
	vendor "github.com/sokoline/sokoline/internal/vendors"
	vendordomain "github.com/sokoline/sokoline/internal/vendors/domain"
	"github.com/sokoline/sokoline/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	gateway.Module,
	notification.Module,
	order.Module,
	transaction.Module,
	vendor.Module,
	effects.Module,
	webhook.Module,
	reconcile.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	orderSvc   orderdomain.Service
	txSvc      transactiondomain.Service
	vendorSvc  vendordomain.Service
	webhookSvc *webhook.Service
	dispatcher effects.Dispatcher
	scheduler  *reconcile.Scheduler
}

type ServerParams struct {
	fx.In

	Engine     *gin.Engine
	Config     config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	OrderSvc   orderdomain.Service
	TxSvc      transactiondomain.Service
	VendorSvc  vendordomain.Service
	WebhookSvc *webhook.Service
	Dispatcher effects.Dispatcher
	Scheduler  *reconcile.Scheduler
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Engine,
		cfg:        p.Config,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		orderSvc:   p.OrderSvc,
		txSvc:      p.TxSvc,
		vendorSvc:  p.VendorSvc,
		webhookSvc: p.WebhookSvc,
		dispatcher: p.Dispatcher,
		scheduler:  p.Scheduler,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.engine

	r.POST("/webhooks/payments/:provider", s.handlePaymentWebhook)

	orders := r.Group("/orders")
	{
		orders.POST("", s.handleCreateOrder)
		orders.GET("/:id", s.handleGetOrder)
		orders.POST("/:id/payments", s.handleInitiatePayment)
		orders.POST("/:id/ship", s.handleMarkShipped)
		orders.POST("/:id/deliver", s.handleMarkDelivered)
	}

	vendors := r.Group("/vendors")
	{
		vendors.GET("/:id/balance", s.handleVendorBalance)
		vendors.GET("/:id/transactions", s.handleVendorTransactions)
		vendors.GET("/:id/withdrawals", s.handleVendorWithdrawals)
		vendors.POST("/withdrawals", s.handleRequestWithdrawal)
	}

	admin := r.Group("/admin")
	{
		admin.POST("/transactions/force-success", s.handleForceSuccess)
		admin.GET("/transactions/conflicts", s.handleListConflicts)
		admin.POST("/reconcile", s.handleManualReconcile)
		admin.POST("/orders/:id/retry-effects", s.handleRetryEffects)
		admin.POST("/withdrawals/:id/approve", s.handleApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", s.handleRejectWithdrawal)
		admin.POST("/withdrawals/:id/process", s.handleProcessWithdrawal)
	}
}
