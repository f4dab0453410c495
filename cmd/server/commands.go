package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"homedrive-go/internal/config"
	"homedrive-go/internal/indexer"
	"homedrive-go/internal/jobs"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/kafka"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tasks"
)

// cliUser 是命令行操作使用的身份，拥有超级用户权限。
var cliUser = &model.User{Username: "cli", Role: model.RoleAdmin}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		password, _ := cmd.Flags().GetString("password")
		superuser, _ := cmd.Flags().GetBool("superuser")
		// 命令行只用到 Create，不需要 JWT 与黑名单
		users := service.NewUserService(a.store, repository.NewTokenBlacklist(nil), nil)
		u, err := users.Create(cmd.Context(), args[0], password, superuser)
		if err != nil {
			return err
		}
		fmt.Printf("Created user %q (id %d, role %s)\n", u.Username, u.ID, u.Role)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		users, err := service.NewUserService(a.store, repository.NewTokenBlacklist(nil), nil).List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Reset a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		password, _ := cmd.Flags().GetString("password")
		users := service.NewUserService(a.store, repository.NewTokenBlacklist(nil), nil)
		if err := users.SetPassword(cmd.Context(), args[0], password); err != nil {
			return err
		}
		fmt.Printf("Password of %q updated\n", args[0])
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user with their grants and playlists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		users := service.NewUserService(a.store, repository.NewTokenBlacklist(nil), nil)
		if err := users.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted user %q\n", args[0])
		return nil
	},
}

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage volumes",
}

var volumeAddCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Mount a host directory as a volume; it is indexed by the next running server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		vols := service.NewVolumeService(a.store, service.NewGate(), jobs.NewQueue(a.store, nil))
		vol, job, err := vols.Create(cmd.Context(), cliUser, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Mounted volume %q at %s (id %s), index job %d queued\n", vol.Name, vol.Path, vol.ID, job.ID)
		return nil
	},
}

var volumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List volumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		vols, err := a.store.WithContext(cmd.Context()).Volumes().FindAll()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tKIND\tPATH\tFILES\tLAST INDEXED")
		for _, v := range vols {
			n, err := a.store.Files().CountByVolume(v.ID)
			if err != nil {
				return err
			}
			last := "never"
			if v.LastIndexed != nil {
				last = v.LastIndexed.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", v.ID, v.Name, v.Kind, v.Path, n, last)
		}
		return w.Flush()
	},
}

var volumeIndexCmd = &cobra.Command{
	Use:   "index <volume-id>",
	Short: "Index a volume in the foreground",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ix := indexer.New(a.store, newProber(a))
		stats, err := ix.IndexVolume(cmd.Context(), args[0], func(done, pending int) error {
			if done%100 == 0 {
				fmt.Printf("\r%d folders indexed, %d pending", done, pending)
			}
			return nil
		})
		fmt.Println()
		if err != nil {
			return err
		}
		fmt.Printf("Done: %d folders, %d files created, %d replaced, %d updated, %d deleted\n",
			stats.Folders, stats.Created, stats.Replaced, stats.Updated, stats.Deleted)
		return nil
	},
}

var volumeGrantCmd = &cobra.Command{
	Use:   "grant <volume-id> <user-id> <permission>",
	Short: "Set a user's permission on a volume (0, 10, 20 or 30)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[1], err)
		}
		perm, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid permission %q: %w", args[2], err)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		vols := service.NewVolumeService(a.store, service.NewGate(), jobs.NewQueue(a.store, nil))
		if err := vols.Grant(cmd.Context(), cliUser, args[0], uint(userID), model.Permission(perm)); err != nil {
			return err
		}
		fmt.Printf("Granted %s on volume %s to user %d\n", model.Permission(perm), args[0], userID)
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail job lifecycle events from Kafka",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
		defer log.Sync()
		if cfg.Kafka.Brokers == "" {
			return fmt.Errorf("kafka.brokers is not configured")
		}
		return kafka.Consume(cmd.Context(), cfg.Kafka, "homedrive-events-cli", kafka.EventHandlerFunc(
			func(_ context.Context, event tasks.JobEvent) error {
				fmt.Printf("%s job=%d kind=%s status=%s progress=%d%% %s\n",
					event.Timestamp.Local().Format("15:04:05"), event.JobID, event.Kind, event.Status, event.Progress, event.Error)
				return nil
			}))
	},
}
