package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/loans_backend/config"
	"bitbucket.org/mmdatafocus/loans_backend/middlewares"
	"bitbucket.org/mmdatafocus/loans_backend/models"
	"bitbucket.org/mmdatafocus/loans_backend/utils"
	"bitbucket.org/mmdatafocus/loans_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("loans-backend")

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// actorFromContext rebuilds the engine actor from the request context the
// auth middleware populated.
func actorFromContext(ctx context.Context) (workflow.Actor, bool) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return workflow.Actor{}, false
	}
	userName, _ := utils.GetUserNameFromContext(ctx)
	role, _ := utils.GetUserRoleFromContext(ctx)
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	return workflow.Actor{
		UserId:     userId,
		UserName:   userName,
		Role:       role,
		BusinessId: businessId,
	}, true
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnappliedRemainder):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}

func respondBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

func createBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := actorFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.NewBusiness
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		business, err := models.CreateBusiness(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, business)
	}
}

func getBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := actorFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		business, err := models.GetBusinessById(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func updateBusinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id := c.Param("id")
		if actor.Role != workflow.RoleSuperAdmin && actor.Role != workflow.RoleAdmin && actor.BusinessId != id {
			c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		var input models.UpdateBusinessInput
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		business, err := models.UpdateBusiness(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	}
}

func createClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.NewClient
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		client, err := models.CreateClient(c.Request.Context(), actor.BusinessId, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, client)
	}
}

func listClientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		clients, err := models.GetClients(c.Request.Context(), actor.BusinessId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, clients)
	}
}

func getClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
			return
		}
		client, err := models.GetClient(c.Request.Context(), actor.BusinessId, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, client)
	}
}

type simulateRequest struct {
	Amount           decimal.Decimal `json:"amount" binding:"required"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	TermDays         int             `json:"term_days" binding:"required"`
	PaymentFrequency string          `json:"payment_frequency" binding:"required"`
	StartDate        *time.Time      `json:"start_date"`
}

func simulatePlanHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req simulateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		plan, err := engine.SimulatePlan(c.Request.Context(), actor, req.Amount, req.InterestRate, req.TermDays, req.PaymentFrequency, req.StartDate)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, plan)
	}
}

func createCreditHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input workflow.NewCredit
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		credit, err := engine.CreateCredit(c.Request.Context(), actor, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, credit)
	}
}

func getCreditHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
			return
		}
		credit, err := models.GetCredit(c.Request.Context(), actor.BusinessId, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, credit)
	}
}

func listCreditsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var status *models.CreditStatus
		if s := c.Query("status"); s != "" {
			cs := models.CreditStatus(s)
			status = &cs
		}
		credits, err := models.GetCreditsByBusiness(c.Request.Context(), actor.BusinessId, status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, credits)
	}
}

func listPaymentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
			return
		}
		payments, err := models.GetPaymentsByCredit(c.Request.Context(), actor.BusinessId, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, payments)
	}
}

func cancelCreditHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
			return
		}
		credit, err := engine.CancelCredit(c.Request.Context(), actor, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, credit)
	}
}

func registerPaymentHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input workflow.NewPayment
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		payment, err := engine.RegisterPayment(c.Request.Context(), actor, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	}
}

type updateScheduleRequest struct {
	Installments []workflow.ScheduleLine `json:"installments" binding:"required"`
}

func updateScheduleHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credit id"})
			return
		}
		var req updateScheduleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		credit, err := engine.UpdateCreditSchedule(c.Request.Context(), actor, id, req.Installments)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, credit)
	}
}

func recordMovementHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input workflow.NewMovement
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		movement, err := engine.RegisterCapitalMovement(c.Request.Context(), actor, input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, movement)
	}
}

func cashFlowHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var from, to *time.Time
		if v := c.Query("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
				return
			}
			from = &t
		}
		if v := c.Query("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
				return
			}
			to = &t
		}
		result, err := engine.GetCashFlow(c.Request.Context(), actor, c.Query("business_id"), from, to)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reconcileHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		result, err := engine.Reconcile(c.Request.Context(), actor, c.Query("business_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func forecastHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		target, err := time.Parse(time.RFC3339, c.Query("target_date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_date is required (RFC3339)"})
			return
		}
		result, err := engine.Forecast(c.Request.Context(), actor, c.Query("business_id"), target)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func overdueSweepHandler(engine *workflow.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := engine.Authorize(actor, workflow.ActionRunOverdueSweep); err != nil {
			respondError(c, err)
			return
		}
		businessId := c.Query("business_id")
		if businessId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "business_id is required"})
			return
		}
		flipped, err := engine.RunOverdueSweep(c.Request.Context(), businessId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"business_id": businessId, "flipped": flipped})
	}
}

type tokenRequest struct {
	UserId     int    `json:"user_id" binding:"required"`
	Name       string `json:"name"`
	Role       string `json:"role" binding:"required"`
	BusinessId string `json:"business_id"`
}

// issueTokenHandler mints development tokens. Production deployments receive
// tokens from the identity service, so this route hides itself there.
func issueTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
			customNotFoundHandler(c)
			return
		}
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		token, err := utils.JwtGenerate(req.UserId, req.Name, req.Role, req.BusinessId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	engine := workflow.NewEngine(nil, logger, tracer, nil, nil, workflow.PubSubAuditSink{Logger: logger})

	r.POST("/auth/token", issueTokenHandler())

	api := r.Group("/api")
	api.POST("/businesses", createBusinessHandler())
	api.GET("/businesses/:id", getBusinessHandler())
	api.PUT("/businesses/:id", updateBusinessHandler())
	api.POST("/clients", createClientHandler())
	api.GET("/clients", listClientsHandler())
	api.GET("/clients/:id", getClientHandler())
	api.POST("/credits/simulate", simulatePlanHandler(engine))
	api.POST("/credits", createCreditHandler(engine))
	api.GET("/credits", listCreditsHandler())
	api.GET("/credits/:id", getCreditHandler())
	api.GET("/credits/:id/payments", listPaymentsHandler())
	api.POST("/credits/:id/cancel", cancelCreditHandler(engine))
	api.PUT("/credits/:id/schedule", updateScheduleHandler(engine))
	api.POST("/payments", registerPaymentHandler(engine))
	api.POST("/movements", recordMovementHandler(engine))
	api.GET("/cashflow", cashFlowHandler(engine))
	api.GET("/reconcile", reconcileHandler(engine))
	api.GET("/forecast", forecastHandler(engine))
	r.POST("/internal/ops/overdue-sweep", overdueSweepHandler(engine))
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Now that DB is ready the engine gets its connection.
	engine.SetDB(db)

	// Set the session isolation level to READ COMMITTED
	if err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error; err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Warn("failed to set isolation level: " + err.Error())
	}

	// Periodic overdue sweep across all businesses.
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go func() {
		interval := 60
		if v := strings.TrimSpace(os.Getenv("OVERDUE_SWEEP_INTERVAL_MINUTES")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				interval = n
			}
		}
		ticker := time.NewTicker(time.Duration(interval) * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				engine.SweepAllBusinesses(sweepCtx)
			}
		}
	}()

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelSweep()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
