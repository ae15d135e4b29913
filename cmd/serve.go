package cmd

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/agency-onboarder/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the onboarding chat and the job feed over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default from server.listen)")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger("")
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	logger.Info("starting the agency-onboarder server", zap.String("version", version))

	a, err := newApplication(ctx, logger)
	if err != nil {
		logger.Fatal("starting the server", zap.Error(err))
	}
	defer a.Close()

	srv, err := server.New(server.Deps{
		Conversations: a.orchestrator,
		Jobs:          a.jobs,
		Suitability:   a.scorer,
		Models:        a.models,
		Logger:        logger,
	}, server.Options{
		AllowedOrigin: a.config.Server.AllowedOrigin,
		ExcludeFile:   a.config.ExcludeFile,
		AI:            a.aiFilter(a.config.Suitability.Filter, nil),
		Debug:         viper.GetBool("debug"),
	})
	if err != nil {
		logger.Fatal("building the server", zap.Error(err))
	}

	if err := srv.Run(ctx, a.config.Server.Listen); err != nil {
		logger.Fatal("serving", zap.Error(err))
	}
	logger.Info("server exited")
}
