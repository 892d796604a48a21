package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/wiki-guess/internal/config"
	"github.com/wfunc/wiki-guess/internal/errors"
	"github.com/wfunc/wiki-guess/internal/game"
	"github.com/wfunc/wiki-guess/internal/middleware"
	"github.com/wfunc/wiki-guess/internal/session"
	"github.com/wfunc/wiki-guess/internal/wiki"
	"github.com/wfunc/wiki-guess/internal/ws"
	"go.uber.org/zap"
)

// Router API路由器
type Router struct {
	engine   *gin.Engine
	hub      *ws.Hub
	rooms    *game.RoomManager
	sessions *session.Manager
	wiki     *wiki.Client
	cfg      *config.Config
	log      *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, hub *ws.Hub, rooms *game.RoomManager, sessions *session.Manager, wikiClient *wiki.Client, log *zap.Logger) *Router {
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.Recovery(log))
	engine.Use(middleware.RequestLogger(log))

	router := &Router{
		engine:   engine,
		hub:      hub,
		rooms:    rooms,
		sessions: sessions,
		wiki:     wikiClient,
		cfg:      cfg,
		log:      log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/healthz", r.healthCheck)

	// 词条查询代理
	api := r.engine.Group("/api")
	{
		api.GET("/article/:title", r.lookupArticle)
		api.GET("/games/:code", r.checkGame)
	}

	// WebSocket路由
	r.engine.GET(r.cfg.WebSocket.Path, ws.ServeWS(
		r.hub,
		r.sessions,
		r.cfg.WebSocket.ReadBufferSize,
		r.cfg.WebSocket.WriteBufferSize,
		r.log,
	))

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"rooms":    r.rooms.OpenRooms(),
		"sessions": r.sessions.Count(),
		"online":   r.hub.OnlineCount(),
	})
}

// lookupArticle 查询词条摘要
func (r *Router) lookupArticle(c *gin.Context) {
	title := c.Param("title")

	summary, err := r.wiki.GetSummary(c.Request.Context(), title)
	if err != nil {
		r.log.Warn("词条查询失败",
			zap.String("title", title),
			zap.Error(err))
		r.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// writeError 输出统一的错误响应
func (r *Router) writeError(c *gin.Context, err error) {
	appErr, ok := err.(*errors.AppError)
	if !ok {
		appErr = errors.Wrap(err, errors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), errors.NewErrorResponse(appErr, c.GetHeader("X-Request-ID")))
}

// checkGame 查询房间是否存在（客户端加入前校验房间码）
func (r *Router) checkGame(c *gin.Context) {
	code := c.Param("code")
	if !r.rooms.Exists(code) {
		r.writeError(c, errors.Newf(errors.ErrGameNotFound, "房间码: %s", code))
		return
	}

	c.JSON(http.StatusOK, gin.H{"gameCode": code, "exists": true})
}

// Engine 获取Gin引擎（用于测试）
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
