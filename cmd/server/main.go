package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/postpulse/postpulse/configs"
	"github.com/postpulse/postpulse/internal/api/handlers"
	"github.com/postpulse/postpulse/internal/api/middleware"
	job "github.com/postpulse/postpulse/internal/jobs"
	"github.com/postpulse/postpulse/internal/platforms"
	"github.com/postpulse/postpulse/internal/queue"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/internal/service"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()
	inspector := asynq.NewInspector(redisConn)

	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	registry := platforms.NewRegistry(
		platforms.NewTwitterAdapter(*cfg),
		platforms.NewInstagramAdapter(*cfg),
		platforms.NewLinkedinAdapter(*cfg),
	)

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	publicationRepo := repository.NewPublicationRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	followerRepo := repository.NewFollowerRepository(db)

	notifier := queue.NewAsynqNotifier(client, inspector)

	authService := service.NewAuthService(cfg, userRepo)
	userService := service.NewUserService(userRepo)
	connectionService := service.NewConnectionService(connectionRepo, registry, cfg)
	postService := service.NewPostService(db, postRepo, publicationRepo, connectionRepo, registry, notifier)
	analyticsService := service.NewAnalyticsService(publicationRepo, snapshotRepo, followerRepo)

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	auth := handlers.NewAuthHandler(cfg, authService)
	app.Get("/login", auth.Login)
	app.Get("/login/callback", auth.LoginCallbackHandler)
	app.Get("/logout", auth.Logout)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	user := handlers.NewUserHandler(userService)
	api.Get("/user/info", user.GetUserInfo)
	api.Delete("/user", user.RemoveUser)

	connection := handlers.NewConnectionHandler(connectionService)
	api.Post("/connections/:platform", connection.Connect)
	api.Get("/connections", connection.ListConnections)
	api.Delete("/connections/:id", connection.RemoveConnection)

	post := handlers.NewPostHandler(postService)
	api.Post("/posts", post.CreatePost)
	api.Get("/posts", post.ListPosts)
	api.Get("/posts/:id", post.GetPost)
	api.Patch("/posts/:id", post.UpdatePost)
	api.Post("/posts/:id/edit", post.EditPost)
	api.Post("/posts/:id/retry", post.RetryPost)
	api.Delete("/posts/:id", post.RemovePost)

	analytics := handlers.NewAnalyticsHandler(analyticsService)
	api.Get("/analytics/overview", analytics.Overview)
	api.Get("/analytics/posts", analytics.ListPublished)
	api.Get("/analytics/posts/:platform/:post_id", analytics.PostDetail)
	api.Get("/analytics/followers/:platform", analytics.FollowerGrowth)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(connectionRepo, connectionService)
	followerJob := job.NewFollowerJob(connectionRepo, followerRepo, connectionService, registry)
	metricsJob := job.NewMetricsJob(publicationRepo, snapshotRepo, connectionService, registry)

	// external schedulers can also trigger batch runs over HTTP
	jobs := handlers.NewJobsHandler(metricsJob, followerJob, cfg.CronSecret)
	app.Post("/jobs/metrics/collect", jobs.CollectMetrics)
	app.Post("/jobs/followers/snapshot", jobs.SnapshotFollowers)

	// queue
	queueW := queue.NewQueue(postRepo, publicationRepo, connectionService, registry)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 01h00m00s", metricsJob.Run)
	c.AddFunc("@daily", followerJob.Run)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypePublishPost, queueW.HandlePublishPostTask)
		mux.HandleFunc(queue.TaskTypePostUpdated, queueW.HandlePostUpdatedTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":3000"); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Println("Server is running on http://localhost:3000")

	gracefulShutdown(app, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
