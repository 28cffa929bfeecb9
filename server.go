package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Ntsinga/Zesha-App/config"
	"github.com/Ntsinga/Zesha-App/middlewares"
	"github.com/Ntsinga/Zesha-App/models"
	"github.com/Ntsinga/Zesha-App/utils"
	"github.com/Ntsinga/Zesha-App/workflow"
	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func newEngine() *workflow.ReconciliationEngine {
	store := models.NewGormLedgerStore(config.GetDB())
	return workflow.NewReconciliationEngine(store, config.GetReconciliationSettings())
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, moduleName, funcName string, err error) {
	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case utils.IsDuplicateContentError(err), utils.IsConflictError(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case utils.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		config.LogError(config.GetLogger(), moduleName, funcName, "", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func requireCompanyId(c *gin.Context) (int, bool) {
	companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return 0, false
	}
	return companyId, true
}

// parseReconKey reads the date and shift query params for one window.
func parseReconKey(c *gin.Context, companyId int) (models.ReconKey, error) {
	dateParam := strings.TrimSpace(c.Query("date"))
	if dateParam == "" {
		return models.ReconKey{}, utils.NewValidationError("date query parameter is required (YYYY-MM-DD)")
	}
	date, err := time.ParseInLocation("2006-01-02", dateParam, time.UTC)
	if err != nil {
		return models.ReconKey{}, utils.NewValidationError("invalid date %q: use YYYY-MM-DD", dateParam)
	}

	shiftParam := strings.TrimSpace(c.Query("shift"))
	if shiftParam == "" {
		return models.ReconKey{}, utils.NewValidationError("shift query parameter is required (AM or PM)")
	}
	shift, err := models.ParseShiftType(shiftParam)
	if err != nil {
		return models.ReconKey{}, utils.NewValidationError("%v", err)
	}

	return models.ReconKey{CompanyId: companyId, Date: date, Shift: shift}, nil
}

func actorFromContext(c *gin.Context, fallbackParam string) string {
	if actor := strings.TrimSpace(c.Query(fallbackParam)); actor != "" {
		return actor
	}
	if username, ok := utils.GetUsernameFromContext(c.Request.Context()); ok {
		return username
	}
	if name, ok := utils.GetUserNameFromContext(c.Request.Context()); ok {
		return name
	}
	return "system"
}

func loginHandler() gin.HandlerFunc {
	type loginRequest struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		info, err := models.Login(c.Request.Context(), config.GetDB(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logged_out": ok})
	}
}

func performReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		key, err := parseReconKey(c, companyId)
		if err != nil {
			respondError(c, "server", "performReconciliationHandler", err)
			return
		}

		// Best-effort guard against double submits from the same branch.
		// Correctness is carried by the unique (company, date, shift) key,
		// not by this lock.
		lockKey := utils.ReconciliationLockKey(companyId, key.Date.Format("2006-01-02"), string(key.Shift))
		if lock, lockErr := config.GetRedisLock().Obtain(c.Request.Context(), lockKey, 10*time.Second, nil); lockErr == nil {
			defer lock.Release(c.Request.Context())
		} else if lockErr != redislock.ErrNotObtained {
			config.LogError(config.GetLogger(), "server", "performReconciliationHandler", "redis lock", lockKey, lockErr)
		}

		result, err := newEngine().PerformReconciliation(c.Request.Context(), key, actorFromContext(c, "reviewer"))
		if err != nil {
			respondError(c, "server", "performReconciliationHandler", err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func reconciliationSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		key, err := parseReconKey(c, companyId)
		if err != nil {
			respondError(c, "server", "reconciliationSummaryHandler", err)
			return
		}
		summary, err := newEngine().SummarizeReconciliation(c.Request.Context(), key)
		if err != nil {
			respondError(c, "server", "reconciliationSummaryHandler", err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func validateBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		key, err := parseReconKey(c, companyId)
		if err != nil {
			respondError(c, "server", "validateBalancesHandler", err)
			return
		}
		report, err := newEngine().ValidateWindowBalances(c.Request.Context(), key)
		if err != nil {
			respondError(c, "server", "validateBalancesHandler", err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func uploadExcelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, "server", "uploadExcelHandler", err)
			return
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			respondError(c, "server", "uploadExcelHandler", err)
			return
		}

		// Archive the original workbook so the reported rows keep their
		// provenance. Upload failure downgrades to an empty file_url.
		fileUrl := ""
		objectKey := fmt.Sprintf("%d/reports/%s_%s", companyId, utils.GenerateUniqueFilename(), fileHeader.Filename)
		if err := utils.UploadReportToGCS(c.Request.Context(), objectKey, bytes.NewReader(content)); err != nil {
			config.LogError(config.GetLogger(), "server", "uploadExcelHandler", "archive report file", objectKey, err)
		} else {
			fileUrl = utils.BuildObjectAccessURL(objectKey)
		}

		ingestion := workflow.NewReportIngestion(config.GetDB(), newEngine())
		result, err := ingestion.IngestReportFile(c.Request.Context(), companyId, fileHeader.Filename, fileUrl, content, models.SourceTypeMobileApp, actorFromContext(c, "submitted_by"))
		if err != nil {
			respondError(c, "server", "uploadExcelHandler", err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func approveReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reconciliation id"})
			return
		}
		record, err := workflow.NewApprovalWorkflow(config.GetDB()).Approve(c.Request.Context(), companyId, id, actorFromContext(c, "approver"))
		if err != nil {
			respondError(c, "server", "approveReconciliationHandler", err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func rejectReconciliationHandler() gin.HandlerFunc {
	type rejectRequest struct {
		Reason string `json:"reason" binding:"required"`
	}
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reconciliation id"})
			return
		}
		var req rejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rejection reason is required"})
			return
		}
		record, err := workflow.NewApprovalWorkflow(config.GetDB()).Reject(c.Request.Context(), companyId, id, actorFromContext(c, "rejector"), req.Reason)
		if err != nil {
			respondError(c, "server", "rejectReconciliationHandler", err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func listReconciliationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}

		var filter models.ReconciliationFilter
		if v := strings.TrimSpace(c.Query("date_from")); v != "" {
			t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
				return
			}
			filter.DateFrom = &t
		}
		if v := strings.TrimSpace(c.Query("date_to")); v != "" {
			t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
				return
			}
			filter.DateTo = &t
		}
		if v := strings.TrimSpace(c.Query("shift")); v != "" {
			shift, err := models.ParseShiftType(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Shift = &shift
		}
		if v := strings.TrimSpace(c.Query("status")); v != "" {
			status := models.CheckStatus(strings.ToUpper(v))
			filter.Status = &status
		}
		if v := strings.TrimSpace(c.Query("approval_status")); v != "" {
			approval := models.ApprovalStatus(strings.ToUpper(v))
			filter.ApprovalStatus = &approval
		}

		records, err := models.ListReconciliations(c.Request.Context(), config.GetDB(), companyId, filter)
		if err != nil {
			respondError(c, "server", "listReconciliationsHandler", err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func getReconciliationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reconciliation id"})
			return
		}
		record, err := models.GetReconciliationById(c.Request.Context(), config.GetDB(), companyId, id)
		if err != nil {
			respondError(c, "server", "getReconciliationHandler", err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func createSubmittedBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		var input models.NewSubmittedBalance
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.SubmittedBy == "" {
			input.SubmittedBy = actorFromContext(c, "submitted_by")
		}
		if err := utils.ValidateResourceId[models.Account](c.Request.Context(), companyId, input.AccountId); err != nil {
			respondError(c, "server", "createSubmittedBalanceHandler", err)
			return
		}
		// Evidence photos are tenant-prefixed object keys; refuse foreign ones.
		if input.ImageUrl != "" {
			key := utils.ExtractObjectKeyFromURL(input.ImageUrl)
			if key != "" && !strings.HasPrefix(key, strconv.Itoa(companyId)+"/") {
				respondError(c, "server", "createSubmittedBalanceHandler",
					utils.NewValidationError("image_url does not belong to this company"))
				return
			}
		}
		record, err := models.CreateSubmittedBalance(c.Request.Context(), config.GetDB(), companyId, &input)
		if err != nil {
			respondError(c, "server", "createSubmittedBalanceHandler", err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func listSubmittedBalancesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		key, err := parseReconKey(c, companyId)
		if err != nil {
			respondError(c, "server", "listSubmittedBalancesHandler", err)
			return
		}
		records, err := models.ListSubmittedBalances(c.Request.Context(), config.GetDB(), companyId, key.Date, key.Shift)
		if err != nil {
			respondError(c, "server", "listSubmittedBalancesHandler", err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func listReportedTotalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		key, err := parseReconKey(c, companyId)
		if err != nil {
			respondError(c, "server", "listReportedTotalsHandler", err)
			return
		}
		records, err := models.ListReportedTotals(c.Request.Context(), config.GetDB(), companyId, key.Date, key.Shift)
		if err != nil {
			respondError(c, "server", "listReportedTotalsHandler", err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func createCommissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		var input models.NewCommission
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.SubmittedBy == "" {
			input.SubmittedBy = actorFromContext(c, "submitted_by")
		}
		if err := utils.ValidateResourceId[models.Account](c.Request.Context(), companyId, input.AccountId); err != nil {
			respondError(c, "server", "createCommissionHandler", err)
			return
		}
		if input.ImageUrl != "" {
			key := utils.ExtractObjectKeyFromURL(input.ImageUrl)
			if key != "" && !strings.HasPrefix(key, strconv.Itoa(companyId)+"/") {
				respondError(c, "server", "createCommissionHandler",
					utils.NewValidationError("image_url does not belong to this company"))
				return
			}
		}
		record, err := models.CreateCommission(c.Request.Context(), config.GetDB(), companyId, &input)
		if err != nil {
			respondError(c, "server", "createCommissionHandler", err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func listCommissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		key, err := parseReconKey(c, companyId)
		if err != nil {
			respondError(c, "server", "listCommissionsHandler", err)
			return
		}
		records, err := models.ListCommissions(c.Request.Context(), config.GetDB(), companyId, key.Date, key.Shift)
		if err != nil {
			respondError(c, "server", "listCommissionsHandler", err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func createCashCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		var input models.NewCashCount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.CountedBy == "" {
			input.CountedBy = actorFromContext(c, "counted_by")
		}
		record, err := models.CreateCashCount(c.Request.Context(), config.GetDB(), companyId, &input)
		if err != nil {
			respondError(c, "server", "createCashCountHandler", err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func listCashCountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		key, err := parseReconKey(c, companyId)
		if err != nil {
			respondError(c, "server", "listCashCountsHandler", err)
			return
		}
		records, err := models.ListCashCounts(c.Request.Context(), config.GetDB(), companyId, key.Date, key.Shift)
		if err != nil {
			respondError(c, "server", "listCashCountsHandler", err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func createExpenseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		var input models.NewExpense
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.RecordedBy == "" {
			input.RecordedBy = actorFromContext(c, "recorded_by")
		}
		record, err := models.CreateExpense(c.Request.Context(), config.GetDB(), companyId, &input)
		if err != nil {
			respondError(c, "server", "createExpenseHandler", err)
			return
		}
		c.JSON(http.StatusCreated, record)
	}
}

func listExpensesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		var from, to *time.Time
		if v := strings.TrimSpace(c.Query("date_from")); v != "" {
			t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_from"})
				return
			}
			from = &t
		}
		if v := strings.TrimSpace(c.Query("date_to")); v != "" {
			t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_to"})
				return
			}
			to = &t
		}
		records, err := models.ListExpenses(c.Request.Context(), config.GetDB(), companyId, from, to)
		if err != nil {
			respondError(c, "server", "listExpensesHandler", err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func createAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		var input models.NewAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		account, err := models.CreateAccount(c.Request.Context(), config.GetDB(), companyId, &input)
		if err != nil {
			if utils.IsDuplicateKeyError(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "account name already exists"})
				return
			}
			respondError(c, "server", "createAccountHandler", err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func listAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		accounts, err := models.ListAccounts(c.Request.Context(), config.GetDB(), companyId)
		if err != nil {
			respondError(c, "server", "listAccountsHandler", err)
			return
		}
		c.JSON(http.StatusOK, accounts)
	}
}

// createUserHandler provisions staff and manager accounts. Admin only.
func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := requireCompanyId(c)
		if !ok {
			return
		}
		if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}

		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		if input.CompanyId == 0 {
			input.CompanyId = companyId
		}

		user, err := models.CreateUser(c.Request.Context(), config.GetDB(), &input)
		if err != nil {
			respondError(c, "server", "createUserHandler", err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

// outboxReplayHandler lets an admin resurrect DEAD/FAILED outbox events.
func outboxReplayHandler() gin.HandlerFunc {
	type replayRequest struct {
		Ids []int `json:"ids" binding:"required"`
	}
	return func(c *gin.Context) {
		if isAdmin, _ := utils.GetIsAdminFromContext(c.Request.Context()); !isAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		var req replayRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Ids) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
			return
		}
		if err := utils.ValidateResourcesId[models.ReconEventRecord, int](c.Request.Context(), 0, req.Ids); err != nil {
			respondError(c, "server", "outboxReplayHandler", err)
			return
		}
		err := config.GetDB().WithContext(c.Request.Context()).
			Model(&models.ReconEventRecord{}).
			Where("id IN ? AND publish_status IN ?", req.Ids,
				[]models.OutboxPublishStatus{models.OutboxPublishStatusDead, models.OutboxPublishStatusFailed}).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusPending,
				"publish_attempts":   0,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error
		if err != nil {
			respondError(c, "server", "outboxReplayHandler", err)
			return
		}

		actor := "session"
		if userId, ok := utils.GetUserIdFromContext(c.Request.Context()); ok {
			actor = fmt.Sprintf("user:%d", userId)
		}
		if claim := middlewares.CtxValue(c.Request.Context()); claim != nil {
			actor = fmt.Sprintf("jwt:%d", claim.ID)
		}
		config.GetLogger().WithFields(logrus.Fields{
			"field": "outbox",
			"ids":   req.Ids,
			"actor": actor,
		}).Warn("outbox events reset to PENDING for replay")

		c.Status(http.StatusNoContent)
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

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
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

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/auth/login", loginHandler())

	authed := r.Group("/", middlewares.RequireSession())
	{
		authed.POST("/auth/logout", logoutHandler())

		authed.POST("/reconciliations/perform", performReconciliationHandler())
		authed.GET("/reconciliations/summary", reconciliationSummaryHandler())
		authed.GET("/reconciliations/validate-balances", validateBalancesHandler())
		authed.GET("/reconciliations", listReconciliationsHandler())
		authed.GET("/reconciliations/:id", getReconciliationHandler())
		authed.POST("/reconciliations/:id/approve", approveReconciliationHandler())
		authed.POST("/reconciliations/:id/reject", rejectReconciliationHandler())

		authed.POST("/reported-totals/upload-excel", uploadExcelHandler())
		authed.GET("/reported-totals", listReportedTotalsHandler())

		authed.POST("/balances", createSubmittedBalanceHandler())
		authed.GET("/balances", listSubmittedBalancesHandler())
		authed.POST("/commissions", createCommissionHandler())
		authed.GET("/commissions", listCommissionsHandler())
		authed.POST("/cash-counts", createCashCountHandler())
		authed.GET("/cash-counts", listCashCountsHandler())
		authed.POST("/expenses", createExpenseHandler())
		authed.GET("/expenses", listExpensesHandler())
		authed.POST("/accounts", createAccountHandler())
		authed.GET("/accounts", listAccountsHandler())

		authed.POST("/uploads/sign", signUploadHandler())
		authed.POST("/uploads/complete", completeUploadHandler())

		authed.POST("/users", createUserHandler())
	}

	// Ops tooling (admin only): replay outbox messages that were marked
	// DEAD/FAILED. Accepts an admin session or an admin Bearer JWT, so the
	// route sits outside the session-required group.
	r.POST("/internal/ops/outbox/replay", middlewares.AuthMiddleware(), outboxReplayHandler())

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

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start outbox dispatcher (publishes AFTER commit).
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewOutboxDispatcher(db, logger).Run(dispatcherCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<minInt(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
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
	cancelDispatcher()

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

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
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

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP()

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
