package routes

import (
	"log"
	"os"

	controller "heartwise/controllers"
	"heartwise/middleware"
	"heartwise/provider"
	"heartwise/queue"
	"heartwise/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, db *gorm.DB, orch *queue.Orchestrator, registry *provider.Registry) {
	routeLogger := log.New(os.Stdout, "ROUTES: ", log.Ldate|log.Ltime|log.Lshortfile)

	authController := controller.NewAuthController(db, log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile))
	subscriberController := controller.NewSubscriberController(db, orch, log.New(os.Stdout, "SUBSCRIBER: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	providerController := controller.NewProviderController(db, registry, orch, log.New(os.Stdout, "PROVIDER: ", log.LstdFlags))
	queueController := controller.NewQueueController(db, orch, log.New(os.Stdout, "QUEUE: ", log.LstdFlags))
	quizController := controller.NewQuizController(db, orch, log.New(os.Stdout, "QUIZ: ", log.LstdFlags))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Public funnel endpoints (no authentication)
	public := app.Group("", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	public.Post("/quiz", middleware.QuizRateLimiter(), quizController.SubmitQuiz)
	public.Get("/unsubscribe/:token", quizController.Unsubscribe)

	// Admin auth
	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	auth.Post("/setup", authController.Setup)
	auth.Post("/login", authController.Login)
	auth.Post("/refresh", authController.RefreshToken)

	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Get("/me", authController.GetCurrentUser)

	// Admin API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Subscriber routes
	subscribers := api.Group("/subscribers")
	subscribers.Post("/", subscriberController.CreateSubscriber)
	subscribers.Get("/", subscriberController.GetSubscribers)
	subscribers.Get("/:id", subscriberController.GetSubscriber)
	subscribers.Put("/:id", subscriberController.UpdateSubscriber)
	subscribers.Delete("/:id", subscriberController.DeleteSubscriber)
	subscribers.Post("/:id/enroll", subscriberController.EnrollSubscriber)
	subscribers.Post("/:id/unsubscribe", subscriberController.UnsubscribeSubscriber)

	// Sequence and template routes
	sequences := api.Group("/sequences")
	sequences.Post("/", sequenceController.CreateSequence)
	sequences.Get("/", sequenceController.GetSequences)
	sequences.Get("/:id", sequenceController.GetSequence)
	sequences.Put("/:id", sequenceController.UpdateSequence)
	sequences.Delete("/:id", sequenceController.DeleteSequence)
	sequences.Post("/:id/templates", sequenceController.CreateTemplate)
	sequences.Put("/:id/templates/:templateId", sequenceController.UpdateTemplate)
	sequences.Delete("/:id/templates/:templateId", sequenceController.DeleteTemplate)

	// Provider routes
	providers := api.Group("/providers")
	providers.Get("/", providerController.GetProviders)
	providers.Post("/active", providerController.SetActiveProvider)
	providers.Get("/:name/settings", providerController.GetProviderSettings)
	providers.Put("/:name/settings", providerController.UpdateProviderSettings)
	providers.Post("/:name/test", providerController.TestProvider)
	providers.Get("/:name/lists", providerController.GetLists)
	providers.Get("/:name/lists/:listId", providerController.GetList)
	providers.Post("/:name/lists", providerController.CreateList)

	// Queue routes
	queueGroup := api.Group("/queue")
	queueGroup.Post("/process", queueController.ProcessQueue)
	queueGroup.Get("/status", queueController.GetQueueStatus)
	queueGroup.Get("/entries", queueController.GetQueueEntries)
	queueGroup.Post("/entries/:id/cancel", queueController.CancelQueueEntry)
	queueGroup.Get("/history", queueController.GetHistory)
	queueGroup.Post("/send-now", queueController.SendNow)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Route not found", nil)
	})

	routeLogger.Println("Routes initialized successfully")
}
