package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuongbtq/agent-core/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "agent-core-api",
		})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	checkpointHandler := handler.NewCheckpointHandler(deps)
	taskHandler := handler.NewTaskHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details with checkpoints and logs
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a pending job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
		}

		checkpoints := v1.Group("/checkpoints")
		{
			// GET /api/v1/checkpoints - List pending checkpoints
			checkpoints.GET("", checkpointHandler.ListCheckpoints)

			// GET /api/v1/checkpoints/:checkpoint_id - Get checkpoint with parent job
			checkpoints.GET("/:checkpoint_id", checkpointHandler.GetCheckpoint)

			// POST /api/v1/checkpoints/:checkpoint_id/approve - Approve a pending checkpoint
			checkpoints.POST("/:checkpoint_id/approve", checkpointHandler.ApproveCheckpoint)

			// POST /api/v1/checkpoints/:checkpoint_id/reject - Reject a pending checkpoint
			checkpoints.POST("/:checkpoint_id/reject", checkpointHandler.RejectCheckpoint)
		}

		tasks := v1.Group("/tasks")
		{
			// POST /api/v1/tasks - Submit a task to the orchestrator
			tasks.POST("", taskHandler.SubmitTask)

			// GET /api/v1/tasks/:task_id - Get task status and result
			tasks.GET("/:task_id", taskHandler.GetTask)
		}
	}

	return r
}
