package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/wiki-guess/internal/api"
	"github.com/wfunc/wiki-guess/internal/config"
	"github.com/wfunc/wiki-guess/internal/errors"
	"github.com/wfunc/wiki-guess/internal/game"
	"github.com/wfunc/wiki-guess/internal/logger"
	"github.com/wfunc/wiki-guess/internal/session"
	"github.com/wfunc/wiki-guess/internal/wiki"
	"github.com/wfunc/wiki-guess/internal/ws"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务组件
	hub      *ws.Hub
	rooms    *game.RoomManager
	sessions *session.Manager
	wiki     *wiki.Client
	router   *api.Router
	httpSrv  *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	// 命令行参数
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)

	flag.Parse()

	// 显示版本信息
	if *showVersion {
		fmt.Printf("wiki-guess server\n版本: %s\n构建时间: %s\nGit提交: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 创建服务器实例
	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("初始化组件失败", zap.Error(err))
	}

	// 启动服务器
	server.Start()

	// 等待退出信号
	server.WaitForShutdown()

	// 优雅关闭
	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例并装配组件
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	log := logger.GetLogger()

	rooms, err := game.NewRoomManager(&cfg.Game, logger.WithModule("game"))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.ErrUnknown, "创建房间管理器失败")
	}

	hub := ws.NewHub(cfg.WebSocket.SendBufferSize, logger.WithModule("ws"))
	sessions := session.NewManager(&cfg.Game, rooms, hub, logger.WithModule("session"))
	ws.NewPlayHandler(hub, sessions, logger.WithModule("ws"))

	wikiClient := wiki.NewClient(&cfg.Wiki)
	router := api.NewRouter(cfg, hub, rooms, sessions, wikiClient, logger.WithModule("api"))

	return &Server{
		cfg:      cfg,
		logger:   log,
		hub:      hub,
		rooms:    rooms,
		sessions: sessions,
		wiki:     wikiClient,
		router:   router,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start 启动服务器
func (s *Server) Start() {
	s.logger.Info("正在启动游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	// Hub消息循环
	go s.hub.Run()

	// 会话清扫与保活
	s.sessions.Start(s.ctx)

	// HTTP服务
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router.Engine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("HTTP服务启动失败", zap.Error(err))
		}
	}()

	// 监听配置变化
	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新",
			zap.String("log_level", newCfg.Log.Level))
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", addr),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
	}

	// 停止周期任务
	s.sessions.Stop()
	s.cancel()

	// 同步日志
	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}

	return nil
}
