package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"uvian-worker/internal/domain/model"
	"uvian-worker/internal/domain/ports/repository"
	red "uvian-worker/internal/infra/redis"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	seedTitle   string
	seedUser    string
	seedAgent   string
	seedMessage string
)

func init() {
	seedCmd.Flags().StringVar(&seedTitle, "title", "Demo conversation", "conversation title")
	seedCmd.Flags().StringVar(&seedUser, "user", "", "user profile id (generated when empty)")
	seedCmd.Flags().StringVar(&seedAgent, "agent", "", "agent profile id (generated when empty)")
	seedCmd.Flags().StringVar(&seedMessage, "message", "Hello! Who are you?", "first user message")
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo conversation with one user message",
	Args:  cobra.NoArgs,
	RunE:  runSeed,
}

type seedResult struct {
	ConversationID string         `json:"conversationId"`
	UserID         string         `json:"userId"`
	AgentID        string         `json:"agentId"`
	MessageID      string         `json:"messageId"`
	ChatInput      map[string]any `json:"chatInput"`
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

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

	res := seedResult{UserID: seedUser, AgentID: seedAgent}
	if res.UserID == "" {
		res.UserID = uuid.NewString()
	}
	if res.AgentID == "" {
		res.AgentID = uuid.NewString()
	}

	err = st.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		conv := model.NewConversation("", seedTitle)
		if err := st.conversations.Create(ctx, tx, conv); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		members := []model.ConversationMember{
			{ConversationID: conv.ID, ProfileID: res.UserID, Role: model.MemberRoleOwner, CreatedAt: conv.CreatedAt},
			{ConversationID: conv.ID, ProfileID: res.AgentID, Role: model.MemberRoleMember, CreatedAt: conv.CreatedAt},
		}
		for i := range members {
			if err := st.conversations.AddMember(ctx, tx, &members[i]); err != nil {
				return fmt.Errorf("add member: %w", err)
			}
		}
		msg, err := model.NewMessage(uuid.NewString(), conv.ID, res.UserID, model.RoleUser, seedMessage)
		if err != nil {
			return err
		}
		if err := st.messages.Insert(ctx, tx, msg); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		res.ConversationID = conv.ID
		res.MessageID = msg.ID
		return nil
	})
	if err != nil {
		return err
	}

	res.ChatInput = map[string]any{"conversationId": res.ConversationID, "agentId": res.AgentID}
	logger.Info().Str("conversation_id", res.ConversationID).Msg("seeded conversation")
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
