package jobs

import (
	"rentalshop-backend/internal/logger"
)

// runWithRecovery wraps job execution with panic recovery so a bad tenant
// pass can never take down the scheduler process.
func runWithRecovery(jobName, shop string, jobFunc func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "job", jobName, "shop_id", shop, "panic", r)
		}
	}()

	if err := jobFunc(); err != nil {
		// The next scheduled tick is the retry.
		logger.Error("job failed", "job", jobName, "shop_id", shop, "error", err)
	}
}
