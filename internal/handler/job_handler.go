package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/middleware"
	"homedrive-go/internal/model"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/log"
)

const jobNotFound = "Job not found."

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// JobHandler 负责后台任务的查询、停止和进度推送。
type JobHandler struct {
	jobService service.JobService
	interval   time.Duration
}

// NewJobHandler 创建一个新的 JobHandler。interval 是 WebSocket 推送进度的轮询间隔。
func NewJobHandler(jobService service.JobService, interval time.Duration) *JobHandler {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &JobHandler{jobService: jobService, interval: interval}
}

// List 返回最近的任务。
func (h *JobHandler) List(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	jobs, err := h.jobService.List(c.Request.Context(), middleware.CurrentUser(c), limit)
	if err != nil {
		renderError(c, err)
		return
	}
	views := make([]model.JobProgress, 0, len(jobs))
	for i := range jobs {
		views = append(views, jobs[i].ProgressView())
	}
	success(c, views)
}

// Get 返回单个任务的完整信息。
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := uintParam(c, "id", jobNotFound)
	if !ok {
		return
	}
	job, err := h.jobService.Get(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, job)
}

// Stop 请求停止任务，执行中的任务会在下一个检查点结束。
func (h *JobHandler) Stop(c *gin.Context) {
	id, ok := uintParam(c, "id", jobNotFound)
	if !ok {
		return
	}
	job, err := h.jobService.Stop(c.Request.Context(), middleware.CurrentUser(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	success(c, job.ProgressView())
}

// Progress 把任务进度通过 WebSocket 推送给客户端，进度变化时发送一条 JSON，任务结束后关闭连接。
func (h *JobHandler) Progress(c *gin.Context) {
	id, ok := uintParam(c, "id", jobNotFound)
	if !ok {
		return
	}
	user := middleware.CurrentUser(c)
	if _, err := h.jobService.Get(c.Request.Context(), user, id); err != nil {
		renderError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[JobHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// 客户端关闭连接时结束推送
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	var (
		last model.JobProgress
		sent bool
	)
	for {
		job, err := h.jobService.Get(ctx, user, id)
		if err != nil {
			if ctx.Err() == nil {
				_ = conn.WriteJSON(gin.H{"error": apperr.PublicMessage(err)})
			}
			return
		}
		view := job.ProgressView()
		if !sent || view != last {
			if err := conn.WriteJSON(view); err != nil {
				return
			}
			last, sent = view, true
		}
		if job.Finished() {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
