package handler

import "github.com/gin-gonic/gin"

// Routes groups the handlers mounted by RegisterRoutes.
type Routes struct {
	Admin  *AdminHandler
	Exams  *ExamHandler
	Health *HealthHandler
	// AdminAuth guards every admin endpoint. It runs before the upload
	// body is read.
	AdminAuth gin.HandlerFunc
}

// RegisterRoutes mounts the public, admin and operational endpoints.
func RegisterRoutes(r gin.IRouter, routes Routes) {
	if routes.Health != nil {
		r.GET("/health", routes.Health.Health)
		r.GET("/ready", routes.Health.Ready)
		r.GET("/metrics", routes.Health.Prometheus)
	}

	if routes.Exams != nil {
		r.GET("/api/exams/:studentId", routes.Exams.ListByStudent)
	}

	if routes.Admin != nil {
		admin := r.Group("/admin")
		if routes.AdminAuth != nil {
			admin.Use(routes.AdminAuth)
		}
		admin.POST("/upload", routes.Admin.Upload)
		admin.GET("/roster", routes.Admin.Summary)
		admin.GET("/roster/export", routes.Admin.Export)
	}
}

