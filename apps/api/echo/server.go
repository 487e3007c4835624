package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
	"github.com/trezcool/ngazi/core/queue"
	"github.com/trezcool/ngazi/core/student"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		ProgressionSvc *progression.Service
		StudentSvc     *student.Service
		Queue          *queue.Queue
		Cache          core.CacheService
		Validate       *validator.Validate
		Translator     ut.Translator
	}

	Server struct {
		deps ServerDeps
		app  *echo.Echo

		serverErrors   chan error
		shutdownSignal chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:           deps,
		app:            echo.New(),
		serverErrors:   make(chan error, 1),
		shutdownSignal: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdownSignal, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	registerProgressionAPI(v1, s.deps)
	registerJobsAPI(v1, s.deps)
}

func (s *Server) Start() {
	s.serverErrors <- s.app.Start(s.deps.Conf.Server.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) Errors() <-chan error {
	return s.serverErrors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdownSignal
}

// signalShutdown gracefully shuts the Server down when an integrity issue is caught.
func (s *Server) signalShutdown() {
	s.shutdownSignal <- syscall.SIGTERM
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Ngazi API!")
}
