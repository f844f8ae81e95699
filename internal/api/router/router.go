package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"juku-attendance/backend/config"
	"juku-attendance/backend/internal/api/handler"
	"juku-attendance/backend/internal/api/middleware"
	"juku-attendance/backend/internal/dto"
	"juku-attendance/backend/pkg/jwt"
	"juku-attendance/backend/pkg/redis"
	"juku-attendance/backend/pkg/response"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时跳过 Token 黑名单与限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	// 接口变量需避免持有 typed nil
	var (
		blacklist middleware.TokenBlacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist = rdb
		limiter = rdb
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		response.OK(c, dto.HealthResponse{Status: "ok", Store: cfg.Store.Backend})
	})

	staff := []string{jwt.RoleSuperAdmin, jwt.RoleAdmin, jwt.RoleTeacher}
	writeLimit := middleware.RateLimit(limiter, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, blacklist))
	{
		classroom := v1.Group("/classrooms/:code")
		classroom.Use(middleware.ClassroomScope())
		{
			// 出欠模块
			classroom.POST("/attendance/save", middleware.RoleAuth(staff...), writeLimit, h.Attendance.Save)
			classroom.GET("/schedules/:date", h.Attendance.GetDailySchedule)

			students := classroom.Group("/students/:studentId")
			{
				students.GET("/attendance", h.Attendance.ListStudentAttendance)
				students.GET("/attendance/export", middleware.RoleAuth(staff...), h.Export.ExportAttendance)
				students.GET("/calendar.ics", h.Export.StudentCalendar)
			}

			// 时段标签模块
			classroom.GET("/period-labels", h.PeriodLabel.Get)
			classroom.PUT("/period-labels", middleware.RoleAuth(jwt.RoleSuperAdmin, jwt.RoleAdmin), writeLimit, h.PeriodLabel.Update)
		}
	}

	return r
}
