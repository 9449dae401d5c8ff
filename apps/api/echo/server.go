// Package echoapi exposes the services over HTTP with echo.
package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/achievement"
	"github.com/trezcool/chuo/core/attendance"
	"github.com/trezcool/chuo/core/draft"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/grade"
	"github.com/trezcool/chuo/core/student"
	"github.com/trezcool/chuo/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc        *user.Service
		DraftSvc       *draft.Service
		ResultSvc      *examresult.Service
		AttendanceSvc  *attendance.Service
		AchievementSvc *achievement.Service
		GradeSvc       *grade.Service
		StudentSvc     *student.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *Auth
		metrics  *metrics
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "conf"),
		vala.IsNotNil(deps.Logger, "logger"),
		vala.IsNotNil(deps.Validate, "validate"),
		vala.IsNotNil(deps.Translator, "translator"),
		vala.IsNotNil(deps.UserSvc, "userSvc"),
		vala.IsNotNil(deps.DraftSvc, "draftSvc"),
		vala.IsNotNil(deps.ResultSvc, "resultSvc"),
		vala.IsNotNil(deps.AttendanceSvc, "attendanceSvc"),
		vala.IsNotNil(deps.AchievementSvc, "achievementSvc"),
		vala.IsNotNil(deps.GradeSvc, "gradeSvc"),
		vala.IsNotNil(deps.StudentSvc, "studentSvc"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     NewAuth(deps.Conf),
		metrics:  newMetrics(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(s.metrics.middleware)
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.Server.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	}
	s.app.Use(timeoutMiddleware(conf.Server.RequestTimeout))

	s.app.GET("/", s.home)
	s.app.GET("/metrics", s.metrics.handler())

	v1 := s.app.Group("/api/v1")
	authed := []echo.MiddlewareFunc{s.auth.middleware(), identityMiddleware(s.deps.UserSvc)}

	registerUserAPI(v1, authed, s.auth, s.deps.UserSvc, s.deps.Validate)
	registerDraftAPI(v1, authed, s.deps.DraftSvc, s.metrics)
	registerResultAPI(v1, authed, s.deps.ResultSvc, s.metrics)
	registerAttendanceAPI(v1, authed, s.deps.AttendanceSvc, conf.Location(), s.metrics)
	registerAchievementAPI(v1, authed, s.deps.AchievementSvc, s.metrics)
	registerGradeAPI(v1, authed, s.deps.GradeSvc, s.metrics)
	registerStudentAPI(v1, authed, s.deps.StudentSvc)
}

// Start listens on the configured address. Failures are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return respond(ctx, http.StatusOK, map[string]string{"build": s.deps.Conf.Build}, "Welcome to "+s.deps.Conf.AppName+" API!")
}
