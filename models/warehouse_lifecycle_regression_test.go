package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
	"github.com/mmdatafocus/cella_backend/models"
	"github.com/mmdatafocus/cella_backend/utils"
	"github.com/mmdatafocus/cella_backend/workflow"
	"github.com/shopspring/decimal"
)

// End-to-end warehouse lifecycle against a dockerized MySQL: resource
// uniqueness, cost verification cascade, single-active product revisions,
// order activation drawdown and its reversal, assembly auto-advance and the
// notification outbox.
func TestWarehouseLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "cella_test")
	t.Setenv("STOCK_POLICY", "strict")
	// no redis in this test; caches fall through to MySQL
	t.Setenv("REDIS_ADDRESS", "")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateDatabase(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	actor := models.PrincipalFromContext(ctx)

	// --- resources ---

	board, err := models.CreateResource(ctx, &models.NewResource{
		Name:         "Pine board",
		ExternalId:   "brd-1",
		Cost:         decimal.RequireFromString("2.00"),
		Amount:       decimal.RequireFromString("100"),
		ProviderName: "Sawmill",
	}, actor)
	if err != nil {
		t.Fatalf("CreateResource board: %v", err)
	}
	screws, err := models.CreateResource(ctx, &models.NewResource{
		Name:       "Screws",
		ExternalId: "scr-1",
		Cost:       decimal.RequireFromString("0.10"),
		Amount:     decimal.RequireFromString("500"),
	}, actor)
	if err != nil {
		t.Fatalf("CreateResource screws: %v", err)
	}

	if _, err := models.CreateResource(ctx, &models.NewResource{
		Name:       "Duplicate board",
		ExternalId: "brd-1",
	}, actor); err != utils.ErrorDuplicateExternalId {
		t.Fatalf("duplicate external id: got %v, want ErrorDuplicateExternalId", err)
	}

	// idempotent operator resolution: same user, same row
	costs, err := models.ResourceCostHistory(ctx, board.ID)
	if err != nil || len(costs) != 1 {
		t.Fatalf("cost history: %v (%d rows)", err, len(costs))
	}
	firstOperator := costs[0].OperatorId

	// --- products ---

	birdhouse, err := models.CreateSpecification(ctx, &models.NewSpecification{
		Name:      "Birdhouse",
		ProductId: "bh-100",
		Price:     utils.DecimalPtr(decimal.RequireFromString("25")),
		Resources: []models.SpecificationResourceInput{
			{ResourceId: board.ID, Amount: decimal.RequireFromString("4")},
			{ResourceId: screws.ID, Amount: decimal.RequireFromString("12")},
		},
	}, actor)
	if err != nil {
		t.Fatalf("CreateSpecification: %v", err)
	}

	detail, err := models.SpecificationDetail(ctx, birdhouse.ID)
	if err != nil {
		t.Fatalf("SpecificationDetail: %v", err)
	}
	// 4*2.00 + 12*0.10 = 9.20
	if want := decimal.RequireFromString("9.20"); !detail.PrimeCost().Equal(want) {
		t.Fatalf("prime cost = %s, want %s", detail.PrimeCost(), want)
	}
	// min(100/4, 500/12) = 25 vs 41 -> 25
	if got := detail.AssembleInfo(); got != 25 {
		t.Fatalf("assemble info = %d, want 25", got)
	}

	// a second revision deactivates the first
	revision, err := models.CreateSpecification(ctx, &models.NewSpecification{
		Name:      "Birdhouse v2",
		ProductId: "bh-100",
		Resources: []models.SpecificationResourceInput{
			{ResourceId: board.ID, Amount: decimal.RequireFromString("4")},
		},
	}, actor)
	if err != nil {
		t.Fatalf("CreateSpecification revision: %v", err)
	}
	old, err := models.GetSpecification(ctx, birdhouse.ID)
	if err != nil {
		t.Fatalf("GetSpecification: %v", err)
	}
	if old.IsActive {
		t.Fatal("previous revision must be deactivated")
	}

	// --- verification cascade ---

	if err := models.SetResourceCost(ctx, board.ID, decimal.RequireFromString("2.50"), false, actor); err != nil {
		t.Fatalf("SetResourceCost unverified: %v", err)
	}
	old, _ = models.GetSpecification(ctx, birdhouse.ID)
	current, _ := models.GetSpecification(ctx, revision.ID)
	if old.Verified || current.Verified {
		t.Fatal("unverified cost must invalidate every product containing the resource")
	}

	db := config.GetDB()
	var queued int64
	if err := db.Model(&models.NotificationRecord{}).
		Where("kind = ? AND external_id = ?", models.NotificationPrimeCost, "bh-100").
		Count(&queued).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	// only the active revision notifies
	if queued != 1 {
		t.Fatalf("prime-cost notifications queued = %d, want 1", queued)
	}

	// a second unverified row joins the backlog; verification clears both
	if err := models.SetResourceCost(ctx, board.ID, decimal.RequireFromString("2.60"), false, actor); err != nil {
		t.Fatalf("SetResourceCost second unverified: %v", err)
	}
	updated, err := models.VerifyResourceCosts(ctx, []int{board.ID, screws.ID}, actor)
	if err != nil {
		t.Fatalf("VerifyResourceCosts: %v", err)
	}
	if updated != 2 {
		t.Fatalf("verified rows = %d, want 2", updated)
	}
	unverified, err := models.ResourcesWithUnverifiedCost(ctx)
	if err != nil {
		t.Fatalf("ResourcesWithUnverifiedCost: %v", err)
	}
	if len(unverified) != 0 {
		t.Fatalf("resources still awaiting verification: %d, want 0", len(unverified))
	}
	if err := models.SetSpecificationPrice(ctx, revision.ID, decimal.RequireFromString("27"), false, actor); err != nil {
		t.Fatalf("SetSpecificationPrice: %v", err)
	}
	current, _ = models.GetSpecification(ctx, revision.ID)
	if !current.Verified {
		t.Fatal("setting a price must restore the verified flag")
	}

	// --- order lifecycle ---

	if err := models.SetSpecificationAmount(ctx, revision.ID, 2, actor); err != nil {
		t.Fatalf("SetSpecificationAmount: %v", err)
	}

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		ExternalId: "ord-1",
		Source:     "marketplace",
		Products: []models.OrderProductInput{
			{ProductId: "bh-100", Amount: 5},
			{ProductId: "ghost-1", Amount: 1},
		},
	}, actor)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	orderDetail, err := models.OrderDetail(ctx, order.ID)
	if err != nil {
		t.Fatalf("OrderDetail: %v", err)
	}
	if len(orderDetail.OrderSpecifications) != 1 || len(orderDetail.UnresolvedProducts) != 1 {
		t.Fatalf("lines=%d unresolved=%d, want 1/1",
			len(orderDetail.OrderSpecifications), len(orderDetail.UnresolvedProducts))
	}

	boardBefore, _ := models.GetResource(ctx, board.ID)

	if err := workflow.ActivateOrder(ctx, order.ID, actor); err != nil {
		t.Fatalf("ActivateOrder: %v", err)
	}
	// 2 sets from the shelf, 3 from raw stock: 3*4 boards
	current, _ = models.GetSpecification(ctx, revision.ID)
	if current.Amount != 0 {
		t.Fatalf("shelf sets after activation = %d, want 0", current.Amount)
	}
	boardAfter, _ := models.GetResource(ctx, board.ID)
	if want := boardBefore.Amount.Sub(decimal.RequireFromString("12")); !boardAfter.Amount.Equal(want) {
		t.Fatalf("board stock after activation = %s, want %s", boardAfter.Amount, want)
	}
	// activation itself sends nothing to the storefront
	var activationQueued int64
	if err := db.Model(&models.NotificationRecord{}).
		Where("external_id = ?", "ord-1").
		Count(&activationQueued).Error; err != nil {
		t.Fatalf("count order notifications: %v", err)
	}
	if activationQueued != 0 {
		t.Fatalf("notifications queued by activation = %d, want 0", activationQueued)
	}

	if err := workflow.ActivateOrder(ctx, order.ID, actor); err != utils.ErrorInvalidTransition {
		t.Fatalf("double activation: got %v, want ErrorInvalidTransition", err)
	}

	// assembling auto-advances to READY once every line is packed
	if err := workflow.AssembleSpecification(ctx, order.ID, revision.ID, actor); err != nil {
		t.Fatalf("AssembleSpecification: %v", err)
	}
	fresh, _ := models.GetOrder(ctx, order.ID)
	if fresh.Status != models.OrderStatusReady {
		t.Fatalf("status after assembling the only line = %s, want READY", fresh.Status)
	}

	if err := workflow.DisassembleSpecification(ctx, order.ID, revision.ID, actor); err != nil {
		t.Fatalf("DisassembleSpecification: %v", err)
	}
	fresh, _ = models.GetOrder(ctx, order.ID)
	if fresh.Status != models.OrderStatusActive {
		t.Fatalf("status after disassembling = %s, want ACTIVE", fresh.Status)
	}

	// deactivation is a full reversal to raw materials
	if err := workflow.DeactivateOrder(ctx, order.ID, actor); err != nil {
		t.Fatalf("DeactivateOrder: %v", err)
	}
	boardReturned, _ := models.GetResource(ctx, board.ID)
	// shelf sets came back as raw materials: 5 sets * 4 boards
	if want := boardBefore.Amount.Add(decimal.RequireFromString("8")); !boardReturned.Amount.Equal(want) {
		t.Fatalf("board stock after deactivation = %s, want %s", boardReturned.Amount, want)
	}

	// building sets moves raw materials onto the shelf, all or nothing
	if err := models.BuildSet(ctx, revision.ID, 2, true, actor); err != nil {
		t.Fatalf("BuildSet: %v", err)
	}
	current, _ = models.GetSpecification(ctx, revision.ID)
	if current.Amount != 2 {
		t.Fatalf("shelf sets after build = %d, want 2", current.Amount)
	}
	boardBuilt, _ := models.GetResource(ctx, board.ID)
	if want := boardReturned.Amount.Sub(decimal.RequireFromString("8")); !boardBuilt.Amount.Equal(want) {
		t.Fatalf("board stock after build = %s, want %s", boardBuilt.Amount, want)
	}

	if err := models.BuildSet(ctx, revision.ID, 1000, true, actor); err != utils.ErrorCantBuildSet {
		t.Fatalf("oversized build: got %v, want ErrorCantBuildSet", err)
	}
	boardGuarded, _ := models.GetResource(ctx, board.ID)
	if !boardGuarded.Amount.Equal(boardBuilt.Amount) {
		t.Fatalf("failed build must not touch stock, board = %s", boardGuarded.Amount)
	}
	current, _ = models.GetSpecification(ctx, revision.ID)
	if current.Amount != 2 {
		t.Fatalf("failed build must not add shelf sets, got %d", current.Amount)
	}

	// shortage aborts atomically under the strict policy
	if err := models.SetResourceAmount(ctx, board.ID, decimal.RequireFromString("3"), actor); err != nil {
		t.Fatalf("SetResourceAmount: %v", err)
	}
	err = workflow.ActivateOrder(ctx, order.ID, actor)
	var stockErr *utils.InsufficientStockError
	if !asInsufficientStock(err, &stockErr) {
		t.Fatalf("activation with 3 boards: got %v, want InsufficientStockError", err)
	}
	boardUntouched, _ := models.GetResource(ctx, board.ID)
	if !boardUntouched.Amount.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("failed activation must not leak stock changes, board = %s", boardUntouched.Amount)
	}
	fresh, _ = models.GetOrder(ctx, order.ID)
	if fresh.Status != models.OrderStatusInactive {
		t.Fatalf("failed activation must keep the order INACTIVE, got %s", fresh.Status)
	}

	// restock, run through to confirmation
	if err := models.SetResourceAmount(ctx, board.ID, decimal.RequireFromString("100"), actor); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if err := workflow.ActivateOrder(ctx, order.ID, actor); err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if err := workflow.AssembleSpecification(ctx, order.ID, revision.ID, actor); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if err := workflow.ConfirmOrder(ctx, order.ID, actor); err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}
	var shipQueued int64
	if err := db.Model(&models.NotificationRecord{}).
		Where("kind = ? AND external_id = ?", models.NotificationShip, "ord-1").
		Count(&shipQueued).Error; err != nil {
		t.Fatalf("count ship notifications: %v", err)
	}
	if shipQueued != 1 {
		t.Fatalf("ship notifications queued = %d, want 1", shipQueued)
	}

	if err := workflow.CancelOrder(ctx, order.ID, actor); err != utils.ErrorCannotCancel {
		t.Fatalf("cancel after confirm: got %v, want ErrorCannotCancel", err)
	}
	if err := workflow.ArchiveOrder(ctx, order.ID, actor); err != nil {
		t.Fatalf("ArchiveOrder: %v", err)
	}

	// operator attribution stayed stable throughout
	actions, err := models.ResourceActionHistory(ctx, board.ID)
	if err != nil || len(actions) == 0 {
		t.Fatalf("action history: %v (%d rows)", err, len(actions))
	}
	for _, action := range actions {
		if action.OperatorId == nil || firstOperator == nil || *action.OperatorId != *firstOperator {
			t.Fatalf("operator attribution drifted: %v vs %v", action.OperatorId, firstOperator)
		}
	}

	// singleton operators stay unique no matter how often they resolve
	if _, err := models.VerifyResourceCosts(ctx, []int{screws.ID}, models.SystemPrincipal()); err != nil {
		t.Fatalf("system verify: %v", err)
	}
	if _, err := models.VerifyResourceCosts(ctx, []int{screws.ID}, models.SystemPrincipal()); err != nil {
		t.Fatalf("system verify again: %v", err)
	}
	var serviceOperators int64
	if err := db.Model(&models.Operator{}).
		Where("kind = ?", models.OperatorService).
		Count(&serviceOperators).Error; err != nil {
		t.Fatalf("count service operators: %v", err)
	}
	if serviceOperators != 1 {
		t.Fatalf("service operator rows = %d, want 1", serviceOperators)
	}
	if err := db.Create(&models.Operator{Kind: models.OperatorService, Name: "service"}).Error; !utils.IsDuplicateKeyError(err) {
		t.Fatalf("duplicate service operator: got %v, want duplicate-key error", err)
	}

	counts, err := models.CountOrdersByStatus(ctx)
	if err != nil {
		t.Fatalf("CountOrdersByStatus: %v", err)
	}
	if counts.Inactive+counts.Active+counts.Assembling+counts.Ready != 0 {
		t.Fatalf("archived order still counted: %+v", counts)
	}
}

func asInsufficientStock(err error, target **utils.InsufficientStockError) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*utils.InsufficientStockError); ok {
		*target = e
		return true
	}
	return false
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("cella-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=cella_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
