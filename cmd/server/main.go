// Package main runs the trading service: REST and gRPC APIs over the
// workflow runtime, backed by ClickHouse when available.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "quanttrade/proto"
	"quanttrade/services/activities"
	"quanttrade/services/analyzer"
	"quanttrade/services/arrowpipeline"
	"quanttrade/services/clickhouse"
	"quanttrade/services/config"
	"quanttrade/services/engine"
	"quanttrade/services/marketdata"
	"quanttrade/services/monitoring"
	"quanttrade/services/risk"
	"quanttrade/services/workflow"
)

// TradingService backs both the REST and gRPC surfaces.
type TradingService struct {
	pb.UnimplementedWorkflowServiceServer

	cfg        *config.Config
	client     *workflow.Client
	market     marketdata.Provider
	clickhouse *clickhouse.Client
	arrow      *arrowpipeline.Pipeline
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewTradingService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*TradingService, *workflow.Worker, error) {
	var (
		store  workflow.HistoryStore
		market marketdata.Provider
		ch     *clickhouse.Client
	)

	ch, err := clickhouse.Open(ctx, clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, logger)
	if err == nil {
		if err := ch.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure clickhouse schema: %w", err)
		}
		store = clickhouse.NewHistoryStore(ch)
		market = ch
	} else {
		// Degraded single-process mode: everything in memory.
		logger.Warn("clickhouse unavailable, using in-memory store", zap.Error(err))
		ch = nil
		store = workflow.NewMemoryStore()
		market = marketdata.NewStaticProvider()
	}

	rm := risk.NewManager(cfg.RiskLimits, logger)
	executor := workflow.NewExecutor(store, workflow.RealClock{}, logger)
	activities.Register(executor, activities.Deps{
		Market:   market,
		Risk:     rm,
		Analyzer: analyzer.New(),
		Executor: activities.NewPaperExecutor(logger),
		Notifier: activities.NewLogNotifier(logger),
		Logger:   logger,
	})
	executor.RegisterWorkflow(workflow.WorkflowStrategyBacktest, workflow.StrategyBacktestWorkflow)
	executor.RegisterWorkflow(workflow.WorkflowLiveTrading, workflow.LiveTradingWorkflow)
	executor.RegisterWorkflow(workflow.WorkflowPortfolioRebalancing, workflow.PortfolioRebalancingWorkflow)
	executor.RegisterWorkflow(workflow.WorkflowRiskMonitoring, workflow.RiskMonitoringWorkflow)

	worker := workflow.NewWorker(executor, cfg.Worker.QueueSize, logger)
	client := workflow.NewClient(store, worker, workflow.RealClock{}, logger)

	return &TradingService{
		cfg:        cfg,
		client:     client,
		market:     market,
		clickhouse: ch,
		arrow:      arrowpipeline.NewPipeline(),
		metrics:    monitoring.NewMetrics(),
		logger:     logger,
	}, worker, nil
}

// --- gRPC surface ---

func (s *TradingService) StartBacktest(ctx context.Context, req *pb.StartBacktestRequest) (*pb.StartWorkflowResponse, error) {
	id, err := s.client.StartBacktest(ctx, workflow.BacktestWorkflowInput{
		Strategy: workflow.StrategyConfig{Name: req.Strategy.Name, Parameters: req.Strategy.Parameters},
		Symbol:   req.Symbol,
		Config: engine.BacktestConfig{
			InitialCapital:  req.Config.InitialCapital,
			CommissionRate:  req.Config.CommissionRate,
			SlippageRate:    req.Config.SlippageRate,
			StartDate:       time.Unix(req.Config.StartTime, 0).UTC(),
			EndDate:         time.Unix(req.Config.EndTime, 0).UTC(),
			MinLookbackBars: int(req.Config.MinLookbackBars),
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("workflows_started_total")
	return &pb.StartWorkflowResponse{WorkflowId: id}, nil
}

func (s *TradingService) StartLiveTrading(ctx context.Context, req *pb.StartLiveTradingRequest) (*pb.StartWorkflowResponse, error) {
	qty, err := decimal.NewFromString(req.TradeQuantity)
	if err != nil {
		return nil, fmt.Errorf("parse trade quantity: %w", err)
	}
	id, err := s.client.StartLiveTrading(ctx, workflow.LiveTradingInput{
		Strategy:      workflow.StrategyConfig{Name: req.Strategy.Name, Parameters: req.Strategy.Parameters},
		AccountID:     req.AccountId,
		Symbol:        req.Symbol,
		DurationHours: int(req.DurationHours),
		TradeQuantity: qty,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("workflows_started_total")
	return &pb.StartWorkflowResponse{WorkflowId: id}, nil
}

func (s *TradingService) StartRebalance(ctx context.Context, req *pb.StartRebalanceRequest) (*pb.StartWorkflowResponse, error) {
	id, err := s.client.StartRebalance(ctx, workflow.RebalanceInput{
		AccountID:         req.AccountId,
		PortfolioValue:    req.PortfolioValue,
		TargetAllocations: req.TargetAllocations,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("workflows_started_total")
	return &pb.StartWorkflowResponse{WorkflowId: id}, nil
}

func (s *TradingService) StartRiskMonitor(ctx context.Context, req *pb.StartRiskMonitorRequest) (*pb.StartWorkflowResponse, error) {
	id, err := s.client.StartRiskMonitor(ctx, workflow.RiskMonitorInput{
		AccountID:            req.AccountId,
		DurationHours:        int(req.DurationHours),
		CheckIntervalMinutes: int(req.CheckIntervalMinutes),
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Inc("workflows_started_total")
	return &pb.StartWorkflowResponse{WorkflowId: id}, nil
}

func (s *TradingService) GetWorkflowStatus(ctx context.Context, req *pb.GetWorkflowStatusRequest) (*pb.GetWorkflowStatusResponse, error) {
	run, err := s.client.GetStatus(ctx, req.WorkflowId)
	if err != nil {
		return nil, err
	}
	return &pb.GetWorkflowStatusResponse{
		WorkflowId: run.ID,
		Workflow:   run.Workflow,
		Status:     string(run.Status),
		Error:      run.Error,
		ResultJson: string(run.Result),
		StartedAt:  run.StartedAt.Unix(),
		UpdatedAt:  run.UpdatedAt.Unix(),
	}, nil
}

// --- REST surface ---

func (s *TradingService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/workflows/backtest", s.handleStartBacktest)
		api.POST("/workflows/livetrading", s.handleStartLiveTrading)
		api.POST("/workflows/rebalance", s.handleStartRebalance)
		api.POST("/workflows/riskmonitor", s.handleStartRiskMonitor)
		api.GET("/workflows", s.handleListWorkflows)
		api.GET("/workflows/:id", s.handleGetWorkflow)
		api.GET("/workflows/:id/equity.arrow", s.handleExportEquity)
		api.POST("/bars", s.handleInsertBars)
		api.GET("/bars/:symbol/export.arrow", s.handleExportBars)
		api.GET("/health", s.handleHealth)
		api.GET("/metrics", s.handleMetrics)
	}
}

func (s *TradingService) handleStartBacktest(c *gin.Context) {
	var in workflow.BacktestWorkflowInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.client.StartBacktest(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.Inc("workflows_started_total")
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id})
}

func (s *TradingService) handleStartLiveTrading(c *gin.Context) {
	var in workflow.LiveTradingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.client.StartLiveTrading(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.Inc("workflows_started_total")
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id})
}

func (s *TradingService) handleStartRebalance(c *gin.Context) {
	var in workflow.RebalanceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.client.StartRebalance(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.Inc("workflows_started_total")
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id})
}

func (s *TradingService) handleStartRiskMonitor(c *gin.Context) {
	var in workflow.RiskMonitorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.client.StartRiskMonitor(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.Inc("workflows_started_total")
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id})
}

func (s *TradingService) handleListWorkflows(c *gin.Context) {
	runs, err := s.client.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *TradingService) handleGetWorkflow(c *gin.Context) {
	run, err := s.client.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleExportEquity streams a completed backtest's equity curve as Arrow IPC.
func (s *TradingService) handleExportEquity(c *gin.Context) {
	run, err := s.client.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if run.Status != workflow.StatusCompleted || len(run.Result) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("workflow is %s, no equity curve", run.Status)})
		return
	}
	var result workflow.BacktestWorkflowResult
	if err := workflow.Unmarshal(run.Result, &result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data, err := s.arrow.EquityCurveToArrow(result.Backtest.EquityCurve)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.Inc("arrow_exports_total")
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

func (s *TradingService) handleInsertBars(c *gin.Context) {
	if s.clickhouse == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "bar storage requires clickhouse"})
		return
	}
	var bars []engine.Bar
	if err := c.ShouldBindJSON(&bars); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.clickhouse.InsertBars(c.Request.Context(), bars); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.metrics.Add("bars_ingested_total", int64(len(bars)))
	c.JSON(http.StatusCreated, gin.H{"inserted": len(bars)})
}

func (s *TradingService) handleExportBars(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC3339"})
		return
	}
	bars, err := s.market.Fetch(c.Request.Context(), c.Param("symbol"), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data, err := s.arrow.BarsToArrow(bars)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.metrics.Inc("arrow_exports_total")
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

func (s *TradingService) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().Unix(),
		"clickhouse": s.clickhouse != nil,
	})
}

func (s *TradingService) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain")
	c.String(http.StatusOK, s.metrics.Render())
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting trading service", zap.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, worker, err := NewTradingService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create trading service", zap.Error(err))
	}
	worker.Start(ctx, cfg.Worker.Count)

	grpcServer := grpc.NewServer()
	pb.RegisterWorkflowServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupHTTPRoutes(router)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: router,
	}

	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}
		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
	cancel()
	worker.Stop()
	if service.clickhouse != nil {
		service.clickhouse.Close()
	}
	logger.Info("Servers stopped")
}
