package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/raven-go"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	parser.AddCommand("run",
		"Run mg-relay",
		"Run mg-relay.",
		&RunCommand{},
	)
}

// RunCommand struct
type RunCommand struct{}

// Execute command
func (x *RunCommand) Execute(args []string) error {
	config := LoadConfig(options.Config)
	setupLogger(config.LogLevel)
	orm := NewDb(config)

	e := newEnv(config, orm, telegramClientFactory(config), newMediaArchive(config.ConfigAWS))

	go start(e)

	c := make(chan os.Signal, 1)
	signal.Notify(c)
	for sig := range c {
		switch sig {
		case os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM:
			orm.Close()
			return nil
		default:
		}
	}

	return nil
}

func start(e *env) {
	routing := setup(e)
	if err := routing.Run(e.config.HTTPServer.Listen); err != nil {
		logger.Fatalf("http server: %v", err)
	}
}

func setup(e *env) *gin.Engine {
	setValidation()

	if !e.config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if e.config.Debug {
		r.Use(gin.Logger())
	}

	r.Use(setLocale())

	errorHandlers := []ErrorHandlerFunc{
		PanicLogger(),
		ErrorLogger(),
		ErrorResponseHandler(),
	}

	sentry, _ := raven.New(e.config.SentryDSN)
	if sentry != nil {
		errorHandlers = append(errorHandlers, ErrorCaptureHandler(sentry, true))
	}

	r.Use(ErrorHandler(errorHandlers...))

	r.POST("/telegram/:token", e.telegramWebhookHandler)
	r.GET("/media/:id/*path", e.mediaProxyHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", e.authenticate())
	api.POST("/send", e.sendMessageHandler)
	api.POST("/bots", e.botActionHandler)
	api.GET("/bots/:id/messages", e.messagesHandler(false))
	api.POST("/bots/:id/chats/:chatId/read", e.markReadHandler)
	api.GET("/feed", e.feedHandler)

	admin := api.Group("/admin", e.requireAdmin())
	admin.GET("/bots/:id/messages", e.messagesHandler(true))

	return r
}
