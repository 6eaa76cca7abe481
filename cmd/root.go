package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chatwire/gateway/internal/application"
	"github.com/chatwire/gateway/internal/config"
	"github.com/chatwire/gateway/internal/logger"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for the chat gateway
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Chatwire gateway is a real-time chat event gateway",
	Long:  `Real-time WebSocket gateway that fans chat events out from the shared broker to subscribed clients.`,
	Example: `
  gateway start --broker-host localhost --broker-port 6379
  gateway start --log-level debug --metrics-port 2112
  gateway start --config /path/to/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for version command
		if cmd.Name() == "version" {
			return nil
		}

		// Load configuration (use nil logger to avoid sync issues)
		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		// Override config with command line flags if specified
		flags := cmd.Flags()
		if flags.Changed("gateway-name") {
			cfg.Gateway.Name, _ = flags.GetString("gateway-name")
		}
		if flags.Changed("broker-host") {
			cfg.Broker.Host, _ = flags.GetString("broker-host")
		}
		if flags.Changed("broker-port") {
			cfg.Broker.Port, _ = flags.GetInt("broker-port")
		}
		if flags.Changed("metrics-port") {
			portStr, _ := flags.GetString("metrics-port")
			cfg.Metrics.Port, _ = strconv.Atoi(portStr)
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		// Default behavior: show help when no subcommand is provided
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init is automatically called before main(), sets up flags and loads config
func init() {
	// Add persistent flags (inherited by all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")

	// CLI flags for gateway configuration
	rootCmd.PersistentFlags().String("gateway-name", "", "Name of the gateway instance (max 30 chars)")
	rootCmd.PersistentFlags().String("broker-host", "localhost", "Redis broker host")
	rootCmd.PersistentFlags().IntP("broker-port", "", 6379, "Redis broker port")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-file", "", "Path to the log file")
	rootCmd.PersistentFlags().String("log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().String("metrics-port", "2112", "Port for Prometheus metrics server")

	// A simple version subcommand
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of the gateway",
		Long:  "Print the version number of the gateway along with build information",
		Run: func(cmd *cobra.Command, args []string) {
			// Check if detailed flag is provided
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	})

	// Add detailed flag to version command
	versionCmd := rootCmd.Commands()[len(rootCmd.Commands())-1]
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")

	// Add start subcommand
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway server",
		Long:  "Start the gateway server with the specified configuration",
		Run: func(cmd *cobra.Command, args []string) {
			cfgFile, _ = cmd.Flags().GetString("config")
			if cfgFile != "" {
				absPath, err := filepath.Abs(cfgFile)
				if err != nil {
					logger.Error("Failed to resolve absolute path for config", zap.Error(err))
					os.Exit(1)
				}
				cfgFile = absPath
			}
			logger.Info("Using config file", zap.String("config_file", cfgFile))

			// Use the context passed down from main.go
			ctx := cmd.Context()

			// Initialize the gateway node
			logger.Info("Starting gateway...")
			app, err := application.New(ctx, cfg)
			if err != nil {
				logger.Error("Failed to initialize the gateway", zap.Error(err))
				os.Exit(1)
			}

			// Set up graceful shutdown handling
			go func() {
				<-ctx.Done() // Wait for cancellation signal
				logger.Info("Shutdown signal received, initiating graceful shutdown...")
				app.Shutdown()
			}()

			// Start the gateway
			if err := app.Start(ctx); err != nil {
				logger.Error("Failed to start the gateway", zap.Error(err))
				os.Exit(1)
			}

			logger.Info("Gateway started successfully!")
		},
	}

	rootCmd.AddCommand(startCmd)
}
