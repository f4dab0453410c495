package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"homedrive-go/internal/middleware"
	"homedrive-go/internal/service"
	"homedrive-go/pkg/token"
)

// Services 汇总路由需要的所有业务服务。
type Services struct {
	Users     service.UserService
	Volumes   service.VolumeService
	Files     service.FileService
	Zips      service.ZipService
	Links     service.LinkService
	Jobs      service.JobService
	Playlists service.PlaylistService
}

// RouterOptions 是路由层的可调参数。
type RouterOptions struct {
	// UploadMemoryMB 是 multipart 表单在内存中缓存的上限。
	UploadMemoryMB int64
	// ProgressInterval 是 WebSocket 推送任务进度的轮询间隔。
	ProgressInterval time.Duration
}

// NewRouter 创建 Gin 引擎并注册所有 /api/v1 路由。
func NewRouter(jwtManager *token.JWTManager, svc Services, opts RouterOptions) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	if opts.UploadMemoryMB > 0 {
		r.MaxMultipartMemory = opts.UploadMemoryMB << 20
	}

	auth := middleware.AuthMiddleware(jwtManager, svc.Users)
	userHandler := NewUserHandler(svc.Users)
	fileHandler := NewFileHandler(svc.Files, svc.Links)
	uploadHandler := NewUploadHandler(svc.Files, svc.Zips)
	volumeHandler := NewVolumeHandler(svc.Volumes)
	jobHandler := NewJobHandler(svc.Jobs, opts.ProgressInterval)
	playlistHandler := NewPlaylistHandler(svc.Playlists)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/refreshToken", NewAuthHandler(svc.Users).RefreshToken)
		// 快速访问链接无需登录
		apiV1.GET("/public/:linkId", fileHandler.PublicDownload)

		users := apiV1.Group("/users")
		{
			users.POST("/login", userHandler.Login)
			authed := users.Group("")
			authed.Use(auth)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		volumes := apiV1.Group("/volumes")
		volumes.Use(auth)
		{
			volumes.GET("", volumeHandler.List)
			volumes.POST("", middleware.AdminAuthMiddleware(), volumeHandler.Create)
			volumes.PATCH("/:id", volumeHandler.Rename)
			volumes.DELETE("/:id", middleware.AdminAuthMiddleware(), volumeHandler.Delete)
			volumes.POST("/:id/index", volumeHandler.RequestIndex)
			volumes.PUT("/:id/users", volumeHandler.Grant)
		}

		files := apiV1.Group("/files")
		files.Use(auth)
		{
			files.GET("/search", fileHandler.Search)
			files.POST("/move", fileHandler.Move)
			files.POST("/compress", uploadHandler.Compress)
			files.GET("/:id", fileHandler.Get)
			files.GET("/:id/children", fileHandler.Children)
			files.POST("/:id/folders", fileHandler.CreateFolder)
			files.PATCH("/:id", fileHandler.Rename)
			files.DELETE("/:id", fileHandler.Delete)
			files.POST("/:id/upload", uploadHandler.Upload)
			files.GET("/:id/download", fileHandler.Download)
			files.GET("/:id/thumbnail", fileHandler.Thumbnail)
			files.POST("/:id/links", fileHandler.CreateLink)
		}

		jobs := apiV1.Group("/jobs")
		jobs.Use(auth)
		{
			jobs.GET("", jobHandler.List)
			jobs.GET("/:id", jobHandler.Get)
			jobs.POST("/:id/stop", jobHandler.Stop)
			jobs.GET("/:id/ws", jobHandler.Progress)
		}

		playlists := apiV1.Group("/playlists")
		playlists.Use(auth)
		{
			playlists.GET("", playlistHandler.List)
			playlists.POST("", playlistHandler.Create)
			playlists.GET("/:id", playlistHandler.Get)
			playlists.DELETE("/:id", playlistHandler.Delete)
			playlists.POST("/:id/files", playlistHandler.AddFile)
			playlists.DELETE("/:id/files/:fileId", playlistHandler.RemoveFile)
		}
	}
	return r
}
