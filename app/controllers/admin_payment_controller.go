package controllers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/marketly-hq/marketly/internal/pkg/jobqueue"
	metrics "github.com/marketly-hq/marketly/internal/pkg/metrics/counter"
)

// HandleAdminListPayments returns recent payments for the admin console,
// optionally filtered by status and provider.
func HandleAdminListPayments(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	status := c.Query("status", "")
	provider := c.Query("provider", "")

	list, err := paymentService().RecentPayments(limit, status, provider)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load payments"})
	}
	return c.JSON(fiber.Map{"payments": list})
}

// HandleAdminPaymentStats returns the Redis payment counters plus the job
// queue's own stats.
func HandleAdminPaymentStats(c *fiber.Ctx) error {
	counters, err := metrics.Snapshot()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to read counters"})
	}

	resp := fiber.Map{"counters": counters}

	queue := jobqueue.GetManager().GetQueue()
	ctx := context.Background()
	if jobStats, err := queue.GetJobStats(ctx); err == nil {
		resp["jobs"] = jobStats
	} else {
		log.Warnf("[Admin] Failed to read job stats: %v", err)
	}
	if size, err := queue.GetQueueSize(ctx); err == nil {
		resp["queue_size"] = size
	}
	if size, err := queue.GetProcessingSize(ctx); err == nil {
		resp["processing_size"] = size
	}

	return c.JSON(resp)
}

// HandleAdminReconcileNow triggers one reconcile sweep outside the schedule.
func HandleAdminReconcileNow(c *fiber.Ctx) error {
	if err := jobqueue.GetManager().RunReconcileSweepOnce(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Reconcile sweep failed"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
