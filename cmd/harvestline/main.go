package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/harvestline/internal/profile"
	"github.com/hrygo/harvestline/server"
	"github.com/hrygo/harvestline/store"
	"github.com/hrygo/harvestline/store/db"
)

var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "harvestline",
		Short: `A LINE and web assistant for durian growers: answers from your documents, records harvests, charts yields.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if path := viper.GetString("config"); path != "" {
				viper.SetConfigFile(path)
				if err := viper.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "failed to read config file %s", path)
				}
			}
			return nil
		},
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := &profile.Profile{
				Mode:    viper.GetString("mode"),
				Addr:    viper.GetString("addr"),
				Port:    viper.GetInt("port"),
				Data:    viper.GetString("data"),
				Driver:  viper.GetString("driver"),
				DSN:     viper.GetString("dsn"),
				Version: version,
			}
			instanceProfile.FromEnv()
			setupLogger(instanceProfile)

			if err := instanceProfile.Validate(); err != nil {
				slog.Error("invalid profile", slog.String("error", err.Error()))
				os.Exit(1)
			}

			ctx, cancel := context.WithCancel(context.Background())
			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				cancel()
				slog.Error("failed to create db driver", "error", err)
				return
			}

			storeInstance := store.New(dbDriver, instanceProfile)
			if err := storeInstance.Migrate(ctx); err != nil {
				cancel()
				slog.Error("failed to migrate", "error", err)
				return
			}

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				cancel()
				slog.Error("failed to create server", "error", err)
				return
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			// The default signal sent by the `kill` command is SIGTERM,
			// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			if err := s.Start(ctx); err != nil {
				cancel()
				slog.Error("failed to start server", "error", err)
				return
			}

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}
)

func init() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver, sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().String("config", "", "optional YAML or TOML config file")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "config"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("harvestline")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

// setupLogger installs a text handler for development and JSON for production.
func setupLogger(p *profile.Profile) {
	level := slog.LevelInfo
	if p.Mode == "dev" {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if p.Mode == "prod" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	slog.SetDefault(slog.New(handler))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Harvestline %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	fmt.Printf("LLM: %t, LINE: %t, auto-embed: %t\n", profile.IsLLMEnabled(), profile.IsLineEnabled(), profile.AutoEmbed)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Access your instance at: http://localhost:%d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		fmt.Printf("Access your instance at: http://%s:%d\n", profile.Addr, profile.Port)
	}
	fmt.Println("\nHappy harvesting!")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
