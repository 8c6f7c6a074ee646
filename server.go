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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/imports"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/mmdatafocus/cella_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// respondError maps domain errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	var stockErr *utils.InsufficientStockError
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorDuplicateExternalId):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorInvalidTransition),
		errors.Is(err, utils.ErrorCannotCancel),
		errors.Is(err, utils.ErrorCantBuildSet),
		errors.Is(err, utils.ErrorNegativeStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":         stockErr.Error(),
			"resource_id":   stockErr.ResourceId,
			"resource_name": stockErr.ResourceName,
			"available":     stockErr.Available,
			"needed":        stockErr.Needed,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad id"})
		return 0, false
	}
	return id, true
}

func principal(c *gin.Context) models.Principal {
	return models.PrincipalFromContext(c.Request.Context())
}

// correlationMiddleware attaches a correlation id to every request context.
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// identityMiddleware trusts the gateway-provided user headers and stores the
// acting identity in the request context for audit attribution.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if raw := c.GetHeader("x-user-id"); raw != "" {
			if userId, err := strconv.Atoi(raw); err == nil && userId > 0 {
				ctx = utils.SetUserIdInContext(ctx, userId)
				ctx = utils.SetUserNameInContext(ctx, c.GetHeader("x-user-name"))
			}
		} else {
			ctx = utils.SetAnonymousInContext(ctx)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		for _, ginErr := range c.Errors {
			logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"status": c.Writer.Status(),
			}).Error(ginErr.Error())
		}
	}
}

// ---- resources ----

func createResourceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewResource
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resource, err := models.CreateResource(c.Request.Context(), &input, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resource)
	}
}

func listResourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resources, err := models.ListResources(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resources)
	}
}

func shortlistResourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resources, err := models.ShortlistResources(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resources)
	}
}

func resourceDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		resource, err := models.GetResource(ctx, id, "Provider")
		if err != nil {
			respondError(c, err)
			return
		}
		costs, err := models.ResourceCostHistory(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		actions, err := models.ResourceActionHistory(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		deliveries, err := models.ListDeliveries(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"resource":   resource,
			"costs":      costs,
			"actions":    actions,
			"deliveries": deliveries,
		})
	}
}

func updateResourceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.UpdateResourceFields
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resource, err := models.UpdateResource(c.Request.Context(), id, &input, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resource)
	}
}

type valueBody struct {
	Value    decimal.Decimal `json:"value"`
	Verified *bool           `json:"verified"`
}

func setResourceCostHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body valueBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		verified := true
		if body.Verified != nil {
			verified = *body.Verified
		}
		if err := models.SetResourceCost(c.Request.Context(), id, body.Value, verified, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func setResourceAmountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body valueBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.SetResourceAmount(c.Request.Context(), id, body.Value, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func changeResourceAmountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body valueBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.ChangeResourceAmount(c.Request.Context(), id, body.Value, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type idsBody struct {
	Ids []int `json:"ids" binding:"required"`
}

func verifyResourceCostsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body idsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updated, err := models.VerifyResourceCosts(c.Request.Context(), body.Ids, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"verified": updated})
	}
}

func unverifiedResourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		resources, err := models.ResourcesWithUnverifiedCost(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resources)
	}
}

func deleteResourceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteResource(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func bulkDeleteResourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body idsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.BulkDeleteResources(c.Request.Context(), body.Ids); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func importResourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
			return
		}
		defer file.Close()
		summary, err := imports.ImportResourcesFromExcel(c.Request.Context(), file, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func makeDeliveryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDelivery
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		delivery, err := models.MakeDelivery(c.Request.Context(), &input, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, delivery)
	}
}

func listProvidersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		providers, err := models.ListProviders(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, providers)
	}
}

// ---- specifications ----

func createSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewSpecification
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		specification, err := models.CreateSpecification(c.Request.Context(), &input, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, specification)
	}
}

func listSpecificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		specifications, err := models.ListSpecifications(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		type row struct {
			*models.Specification
			PrimeCost decimal.Decimal `json:"prime_cost"`
		}
		out := make([]row, 0, len(specifications))
		for _, s := range specifications {
			out = append(out, row{Specification: s, PrimeCost: s.PrimeCost()})
		}
		c.JSON(http.StatusOK, out)
	}
}

func specificationDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		specification, err := models.SpecificationDetail(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"specification":         specification,
			"prime_cost":            specification.PrimeCost(),
			"available_to_assemble": specification.AssembleInfo(),
		})
	}
}

func updateSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.EditSpecification
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		specification, err := models.UpdateSpecification(c.Request.Context(), id, &input, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, specification)
	}
}

func setSpecificationPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body struct {
			Value  decimal.Decimal `json:"value"`
			Notify bool            `json:"notify"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.SetSpecificationPrice(c.Request.Context(), id, body.Value, body.Notify, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func setSpecificationCoefficientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body valueBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.SetSpecificationCoefficient(c.Request.Context(), id, body.Value, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func setSpecificationAmountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body struct {
			Value int `json:"value"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.SetSpecificationAmount(c.Request.Context(), id, body.Value, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func setSpecificationCategoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body struct {
			CategoryName string `json:"category_name"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.SetSpecificationCategory(c.Request.Context(), id, body.CategoryName, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func setCategoryManyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Ids          []int  `json:"ids" binding:"required"`
			CategoryName string `json:"category_name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.SetCategoryMany(c.Request.Context(), body.Ids, body.CategoryName, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listCategoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		categories, err := models.ListCategories(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, categories)
	}
}

func buildSetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var body struct {
			Sets          int  `json:"sets" binding:"required"`
			FromResources bool `json:"from_resources"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.BuildSet(c.Request.Context(), id, body.Sets, body.FromResources, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func buildPreviewHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		sets, err := strconv.Atoi(c.DefaultQuery("sets", "1"))
		if err != nil || sets <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad sets"})
			return
		}
		specification, err := models.SpecificationDetail(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, specification.BuildPreview(sets))
	}
}

func deleteSpecificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteSpecification(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func bulkDeleteSpecificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body idsBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.BulkDeleteSpecifications(c.Request.Context(), body.Ids); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func importSpecificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
			return
		}
		defer file.Close()
		summary, err := imports.ImportSpecificationsFromXML(c.Request.Context(), file, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// ---- orders ----

func createOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		order, err := models.CreateOrder(c.Request.Context(), &input, principal(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func listOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := models.ListOrders(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		type row struct {
			*models.Order
			MissingSpecifications []int `json:"missing_specifications"`
			MissingResources      []int `json:"missing_resources"`
		}
		out := make([]row, 0, len(orders))
		for _, order := range orders {
			specs, resources := workflow.AssemblingShortages(order)
			out = append(out, row{Order: order, MissingSpecifications: specs, MissingResources: resources})
		}
		c.JSON(http.StatusOK, out)
	}
}

func orderDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		order, err := models.OrderDetail(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		specs, resources := workflow.AssemblingShortages(order)
		c.JSON(http.StatusOK, gin.H{
			"order":                  order,
			"missing_specifications": specs,
			"missing_resources":      resources,
		})
	}
}

func orderTransitionHandler(apply func(context.Context, int, models.Principal) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := apply(c.Request.Context(), id, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func orderLineTransitionHandler(apply func(context.Context, int, int, models.Principal) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		specificationId, err := strconv.Atoi(c.Param("specificationId"))
		if err != nil || specificationId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad specification id"})
			return
		}
		if err := apply(c.Request.Context(), id, specificationId, principal(c)); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func orderStatusCountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := models.CountOrdersByStatus(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, counts)
	}
}

func listOrderSourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := models.ListOrderSources(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, sources)
	}
}

func deleteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := models.DeleteOrder(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ---- dashboard / ops ----

func dashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		expired, err := models.ExpiredResourceCount(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		unverified, err := models.UnverifiedSpecificationCount(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		counts, err := models.CountOrdersByStatus(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"expired_resources":        expired,
			"unverified_specification": unverified,
			"orders":                   counts,
		})
	}
}

func listNotificationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := models.NotificationStatus(strings.ToUpper(c.DefaultQuery("status", string(models.NotificationStatusDead))))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		records, err := models.ListNotifications(c.Request.Context(), status, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

func notificationReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		revived, err := models.ReplayDeadNotifications(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"replayed": revived})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server before the dependencies so startup probes pass;
	// application endpoints return 503 until the database is connected.
	r := gin.New()
	r.Use(correlationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-user-id", "x-user-name")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(identityMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/resources", createResourceHandler())
		api.GET("/resources", listResourcesHandler())
		api.GET("/resources/shortlist", shortlistResourcesHandler())
		api.GET("/resources/unverified", unverifiedResourcesHandler())
		api.POST("/resources/verify", verifyResourceCostsHandler())
		api.POST("/resources/delete", bulkDeleteResourcesHandler())
		api.POST("/resources/import", importResourcesHandler())
		api.GET("/resources/:id", resourceDetailHandler())
		api.PUT("/resources/:id", updateResourceHandler())
		api.DELETE("/resources/:id", deleteResourceHandler())
		api.POST("/resources/:id/cost", setResourceCostHandler())
		api.POST("/resources/:id/amount", setResourceAmountHandler())
		api.POST("/resources/:id/change-amount", changeResourceAmountHandler())
		api.POST("/deliveries", makeDeliveryHandler())
		api.GET("/providers", listProvidersHandler())

		api.POST("/specifications", createSpecificationHandler())
		api.GET("/specifications", listSpecificationsHandler())
		api.POST("/specifications/categories", setCategoryManyHandler())
		api.GET("/categories", listCategoriesHandler())
		api.POST("/specifications/delete", bulkDeleteSpecificationsHandler())
		api.POST("/specifications/import", importSpecificationsHandler())
		api.GET("/specifications/:id", specificationDetailHandler())
		api.PUT("/specifications/:id", updateSpecificationHandler())
		api.DELETE("/specifications/:id", deleteSpecificationHandler())
		api.POST("/specifications/:id/price", setSpecificationPriceHandler())
		api.POST("/specifications/:id/coefficient", setSpecificationCoefficientHandler())
		api.POST("/specifications/:id/amount", setSpecificationAmountHandler())
		api.POST("/specifications/:id/category", setSpecificationCategoryHandler())
		api.POST("/specifications/:id/build", buildSetHandler())
		api.GET("/specifications/:id/build-preview", buildPreviewHandler())

		api.POST("/orders", createOrderHandler())
		api.GET("/orders", listOrdersHandler())
		api.GET("/orders/status-count", orderStatusCountHandler())
		api.GET("/order-sources", listOrderSourcesHandler())
		api.GET("/orders/:id", orderDetailHandler())
		api.DELETE("/orders/:id", deleteOrderHandler())
		api.POST("/orders/:id/activate", orderTransitionHandler(workflow.ActivateOrder))
		api.POST("/orders/:id/deactivate", orderTransitionHandler(workflow.DeactivateOrder))
		api.POST("/orders/:id/confirm", orderTransitionHandler(workflow.ConfirmOrder))
		api.POST("/orders/:id/cancel", orderTransitionHandler(workflow.CancelOrder))
		api.POST("/orders/:id/archive", orderTransitionHandler(workflow.ArchiveOrder))
		api.POST("/orders/:id/assemble/:specificationId", orderLineTransitionHandler(workflow.AssembleSpecification))
		api.POST("/orders/:id/disassemble/:specificationId", orderLineTransitionHandler(workflow.DisassembleSpecification))

		api.GET("/dashboard", dashboardHandler())
	}

	r.GET("/internal/ops/notifications", listNotificationsHandler())
	r.POST("/internal/ops/notifications/replay", notificationReplayHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
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
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateDatabase(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Deliver queued storefront notifications after their transactions commit.
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go workflow.NewNotificationDispatcher(db, logger).Run(dispatcherCtx)

	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<uint(attempt))
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

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
