// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"homedrive-go/internal/config"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/database"
	"homedrive-go/pkg/log"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "homedrive",
	Short: "Multi-user personal file server",
}

// app 是各个子命令共用的配置、日志和目录存储。
type app struct {
	cfg   *config.Config
	store *repository.Store
}

// newApp 读取配置、初始化日志并打开数据库。调用方负责 defer a.Close()。
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: repository.NewStore(db, cfg.Bulk.BatchSize)}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.store.DB().DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Sync()
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the catalog schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Printf("Catalog schema is up to date (%s)\n", a.cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(eventsCmd)

	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCreateCmd.Flags().StringP("password", "p", "", "Password of the new user")
	userCreateCmd.Flags().Bool("superuser", false, "Grant Admin on every volume")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userPasswdCmd)
	userPasswdCmd.Flags().StringP("password", "p", "", "New password")
	_ = userPasswdCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userDeleteCmd)

	rootCmd.AddCommand(volumeCmd)
	volumeCmd.AddCommand(volumeAddCmd)
	volumeCmd.AddCommand(volumeListCmd)
	volumeCmd.AddCommand(volumeIndexCmd)
	volumeCmd.AddCommand(volumeGrantCmd)
}
