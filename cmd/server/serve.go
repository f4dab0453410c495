package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"homedrive-go/internal/handler"
	"homedrive-go/internal/indexer"
	"homedrive-go/internal/jobs"
	"homedrive-go/internal/model"
	"homedrive-go/internal/probe"
	"homedrive-go/internal/repository"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/database"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tika"
	"homedrive-go/pkg/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, job workers and index scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return serve(cmd.Context(), a)
	},
}

// newProber 创建元数据提取器。未配置 Tika 时不提取文档信息。
func newProber(a *app) probe.Prober {
	var tikaClient *tika.Client
	if a.cfg.Tika.ServerURL != "" {
		tikaClient = tika.NewClient(a.cfg.Tika)
	}
	return probe.NewDefault(tikaClient)
}

// serve 启动全部组件，ctx 结束后优雅停机。
func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	store := a.store

	// 1. Redis 可选，未配置时黑名单与任务租约都在进程内
	rdb, err := database.NewRedis(ctx, cfg.Database.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		log.Info("Redis client connected successfully")
	}

	// 2. 任务队列与事件
	events := jobs.NewEventSink(cfg.Kafka)
	defer func() {
		if err := events.Close(); err != nil {
			log.Errorf("关闭任务事件发布者失败: %v", err)
		}
	}()
	queue := jobs.NewQueue(store, events)
	prober := newProber(a)

	// 3. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	gate := service.NewGate()
	links := service.NewLinkService(store, gate, cfg.PublicLink.ExpiryMinutes)
	services := handler.Services{
		Users:     service.NewUserService(store, repository.NewTokenBlacklist(rdb), jwtManager),
		Volumes:   service.NewVolumeService(store, gate, queue),
		Files:     service.NewFileService(store, gate, prober),
		Zips:      service.NewZipService(store, gate, queue),
		Links:     links,
		Jobs:      service.NewJobService(store, gate, queue),
		Playlists: service.NewPlaylistService(store, gate),
	}

	// 4. 后台 worker
	pool := jobs.NewPool(store, cfg.Jobs, jobs.NewLease(rdb), events)
	pool.Register(model.JobIndex, jobs.IndexRunner{Indexer: indexer.New(store, prober)})
	pool.Register(model.JobZip, service.ZipRunner{Store: store, TempDir: cfg.Storage.VolumesTempDir})

	// 5. 路由
	gin.SetMode(cfg.Server.Mode)
	router := handler.NewRouter(jwtManager, services, handler.RouterOptions{
		UploadMemoryMB:   cfg.Server.UploadMemoryMB,
		ProgressInterval: 500 * time.Millisecond,
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Start(gctx) })
	g.Go(func() error { return jobs.NewScheduler(store, queue, cfg.Indexer.PeriodMinutes).Start(gctx) })
	if cfg.Indexer.Watch {
		watcher := jobs.NewWatcher(store, queue, time.Duration(cfg.Indexer.WatchDebounceMS)*time.Millisecond)
		g.Go(func() error { return watcher.Start(gctx) })
	}
	g.Go(func() error { return purgeLinks(gctx, links) })
	g.Go(func() error {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("接收到停机信号，正在关闭服务...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("服务已优雅关闭")
	return nil
}

// purgeLinks 定期清理过期的快速访问链接，阻塞直到 ctx 结束。
func purgeLinks(ctx context.Context, links service.LinkService) error {
	c := cron.New()
	if _, err := c.AddFunc("@every 10m", func() {
		n, err := links.PurgeExpired(ctx)
		if err != nil {
			log.Errorf("[Links] 清理过期链接失败: %v", err)
			return
		}
		if n > 0 {
			log.Infof("[Links] 清理了 %d 个过期链接", n)
		}
	}); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
