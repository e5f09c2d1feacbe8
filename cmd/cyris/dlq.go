package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cyris/internal/httpapi"
	"cyris/internal/models"
	"cyris/internal/queue"
	"cyris/internal/storage"
)

var dlqLimit int

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect round-trip records that could not be written",
	Long: `Round-trip audit records that failed every write attempt are parked in a
dead-letter queue in Redis. list shows them with the current backlog of the
audit queue; retry moves one record back onto the queue for the server's
usage worker to write.`,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parked records, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runDLQList,
}

var dlqRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-enqueue a parked record",
	Args:  cobra.ExactArgs(1),
	RunE:  runDLQRetry,
}

func init() {
	dlqListCmd.Flags().IntVar(&dlqLimit, "limit", 50, "maximum records to show (0 for all)")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}

// openUsageQueues connects to the queues the server's usage worker drains.
// The returned worker is never started.
func openUsageQueues() (*storage.UsageQueueWorker, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.UseRedis() {
		return nil, nil, errors.New("REDIS_ADDRESS is not set")
	}

	redisClient, err := storage.NewRedisClient(httpapi.RedisConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	client := redisClient.Client()
	queueCfg := httpapi.RoundTripQueueConfig(cfg)

	q, err := queue.NewRedisQueue[models.RoundTripRecord](client, queueCfg)
	if err != nil {
		redisClient.Close()
		return nil, nil, err
	}
	dlq, err := queue.NewRedisDeadLetterQueue[models.RoundTripRecord](client, queueCfg)
	if err != nil {
		redisClient.Close()
		return nil, nil, err
	}

	worker := storage.NewUsageQueueWorker(q, dlq, nil, queueCfg)
	return worker, func() { redisClient.Close() }, nil
}

func runDLQList(cmd *cobra.Command, args []string) error {
	worker, closeFn, err := openUsageQueues()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	backlog, err := worker.GetQueueLength(ctx)
	if err != nil {
		return err
	}
	items, err := worker.GetDeadLetterItems(ctx, dlqLimit)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "queued: %d, parked: %d\n", backlog, len(items))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

func runDLQRetry(cmd *cobra.Command, args []string) error {
	worker, closeFn, err := openUsageQueues()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := worker.RetryDeadLetterItem(cmd.Context(), args[0]); err != nil {
		if errors.Is(err, queue.ErrItemNotFound) {
			return fmt.Errorf("no parked record with id %s", args[0])
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Re-enqueued %s\n", args[0])
	return nil
}
