package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"uvian-worker/internal/domain/model"
	red "uvian-worker/internal/infra/redis"
	"uvian-worker/internal/usecase"

	"github.com/spf13/cobra"
)

var (
	enqueueType   string
	enqueueInput  string
	enqueueFollow bool
)

func init() {
	enqueueCmd.Flags().StringVar(&enqueueType, "type", usecase.JobTypeChat, "job type")
	enqueueCmd.Flags().StringVar(&enqueueInput, "input", "{}", "job input as a JSON object")
	enqueueCmd.Flags().BoolVar(&enqueueFollow, "follow", false, "print published events until the job finishes")
	rootCmd.AddCommand(enqueueCmd)
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Create a job and push it onto the queue",
	Args:  cobra.NoArgs,
	RunE:  runEnqueue,
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var input map[string]any
	if err := json.Unmarshal([]byte(enqueueInput), &input); err != nil {
		return fmt.Errorf("--input: %w", err)
	}

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	st, err := openStorage(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer st.close()

	queue, err := red.NewStreamQueue(ctx, redisClient, cfg.Queue, logger)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	defer queue.Close()

	// Subscribe before submitting so no event is missed. Job-channel jobs
	// need the id first, so they subscribe after Submit and may miss the
	// first tokens.
	var events <-chan string
	pubsub := red.NewPubSub(redisClient)
	convID, _ := input["conversationId"].(string)
	if enqueueFollow && convID != "" {
		if events, err = pubsub.Subscribe(ctx, model.ConversationChannel(convID)); err != nil {
			return err
		}
	}

	job, err := usecase.NewJobUseCase(st.jobs, queue, logger).Submit(ctx, enqueueType, input)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), job.ID)

	if !enqueueFollow {
		return nil
	}
	if events == nil {
		if events, err = pubsub.Subscribe(ctx, model.JobChannel(job.ID)); err != nil {
			return err
		}
	}
	return follow(ctx, cmd, events)
}

// follow prints payloads until a terminal event arrives or ctx ends.
func follow(ctx context.Context, cmd *cobra.Command, events <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			if isTerminalPayload(payload) {
				return nil
			}
		}
	}
}

func isTerminalPayload(payload string) bool {
	var ev struct {
		Finished   bool   `json:"finished"`
		IsComplete bool   `json:"isComplete"`
		Error      string `json:"error"`
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return ev.Finished || ev.IsComplete || ev.Error != ""
}
