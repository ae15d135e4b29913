package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/ai"
	"github.com/spigell/agency-onboarder/internal/onboarding"
)

const (
	chatExit      = "/exit"
	chatKnowledge = "/knowledge"
	retryHint     = "The assistant is temporarily unavailable. Send the message again to retry."
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Onboard an agency in an interactive chat",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("thread", "t", "", "continue an existing thread instead of starting a new one")
}

func chat(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// logs go to stderr so the conversation stays readable
	logger, err := newLogger("stderr")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	a, err := newApplication(ctx, logger)
	if err != nil {
		logger.Fatal("starting the chat", zap.Error(err))
	}
	defer a.Close()

	threadID, _ := cmd.Flags().GetString("thread")
	if threadID == "" {
		threadID = uuid.NewString()
	}
	logger.Info("starting the chat", zap.String("version", version), zap.String("thread_id", threadID))

	state, err := a.orchestrator.State(ctx, threadID)
	if err != nil {
		logger.Fatal("loading the thread", zap.Error(err))
	}
	for _, m := range state.Messages {
		if m.Role == ai.RoleTool {
			continue
		}
		fmt.Printf("%s: %s\n", m.Role, m.Content)
	}
	if len(state.Messages) == 0 {
		fmt.Println("assistant: Hi! Tell me about your agency, or paste a link to your Upwork agency profile.")
	}
	fmt.Printf("(thread %s; %s shows what I know, %s quits)\n", threadID, chatKnowledge, chatExit)

	input := promptui.Prompt{Label: "you"}
	for {
		text, err := input.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return
		}
		if err != nil {
			logger.Fatal("reading input", zap.Error(err))
		}

		text = strings.TrimSpace(text)
		switch text {
		case "":
			continue
		case chatExit:
			return
		case chatKnowledge:
			state, err := a.orchestrator.State(ctx, threadID)
			if err != nil {
				logger.Error("loading the thread", zap.Error(err))
				continue
			}
			fmt.Println(state.Knowledge.String())
			continue
		}

		reply, err := a.orchestrator.HandleMessage(ctx, threadID, text)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if ai.IsProviderError(err) {
				logger.Warn("turn failed", zap.Error(err))
				fmt.Println(retryHint)
				continue
			}
			logger.Fatal("turn failed", zap.Error(err))
		}

		printReply(reply)
	}
}

func printReply(reply *onboarding.Reply) {
	fmt.Printf("assistant: %s\n", reply.Message)
	if reply.Complete {
		fmt.Println("(onboarding complete: run `jobs filter --thread <id>` to see the feed)")
	}
}
