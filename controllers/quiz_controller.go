package controller

import (
	"encoding/json"
	"log"
	"time"

	"heartwise/models"
	"heartwise/queue"
	"heartwise/utils"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// QuizController handles the public lead-capture flow: quiz submissions
// create subscribers and enroll them in the default email sequence, and the
// unsubscribe link from every email lands here too.
type QuizController struct {
	DB           *gorm.DB
	Orchestrator *queue.Orchestrator
	Logger       *log.Logger
}

func NewQuizController(db *gorm.DB, orch *queue.Orchestrator, logger *log.Logger) *QuizController {
	return &QuizController{DB: db, Orchestrator: orch, Logger: logger}
}

type quizInput struct {
	Email     string            `json:"email" validate:"required,email"`
	FirstName string            `json:"first_name"`
	Answers   map[string]string `json:"answers" validate:"required,min=1"`
}

// Answer values carry a weight toward the attachment-style score
var answerWeights = map[string]int{
	"a": 1,
	"b": 2,
	"c": 3,
}

// resultTypeForScore maps the averaged quiz score to the advice archetype
// shown on the result page and used to personalize the sequence
func resultTypeForScore(score int) string {
	switch {
	case score <= 4:
		return "anxious_connector"
	case score <= 8:
		return "guarded_heart"
	default:
		return "secure_seeker"
	}
}

// SubmitQuiz is the public intake endpoint. It validates the email,
// upserts the subscriber, stores the quiz response, syncs the lead to the
// active ESP and enrolls it in the default sequence.
func (qc *QuizController) SubmitQuiz(c *fiber.Ctx) error {
	var input quizInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := checkmail.ValidateFormat(input.Email); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid email address", nil)
	}

	score := 0
	for _, answer := range input.Answers {
		score += answerWeights[answer]
	}
	resultType := resultTypeForScore(score)

	answersJSON, err := json.Marshal(input.Answers)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid answers", err)
	}

	var subscriber models.Subscriber
	err = qc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", input.Email).First(&subscriber).Error; err != nil {
			subscriber = models.Subscriber{
				Email:            input.Email,
				FirstName:        input.FirstName,
				Name:             input.FirstName,
				Source:           "quiz",
				UnsubscribeToken: utils.GenerateUnsubscribeToken(),
			}
			if err := tx.Create(&subscriber).Error; err != nil {
				return err
			}
		} else if input.FirstName != "" && subscriber.FirstName == "" {
			if err := tx.Model(&subscriber).Updates(map[string]interface{}{
				"first_name": input.FirstName,
				"name":       defaultString(subscriber.Name, input.FirstName),
			}).Error; err != nil {
				return err
			}
		}

		response := models.QuizResponse{
			SubscriberID: subscriber.ID,
			Answers:      string(answersJSON),
			Score:        score,
			ResultType:   resultType,
		}
		return tx.Create(&response).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to record quiz submission", err)
	}

	// Sync to the ESP best-effort; a provider outage must not lose the lead
	syncResult := qc.Orchestrator.SyncSubscriber(c.Context(), &subscriber)
	if syncResult.Success && syncResult.SubscriberID != "" {
		qc.DB.Model(&subscriber).Update("provider_subscriber_id", syncResult.SubscriberID)
	}

	enqueued := 0
	var defaultSequence models.EmailSequence
	if err := qc.DB.Where("is_default = ?", true).First(&defaultSequence).Error; err == nil {
		if !subscriber.IsUnsubscribed {
			n, err := qc.Orchestrator.Scheduler.Enroll(subscriber.ID, defaultSequence.ID, time.Now())
			if err != nil {
				qc.Logger.Printf("Failed to enroll quiz lead %d: %v", subscriber.ID, err)
			} else {
				enqueued = n
			}
		}
	}

	utils.LogEvent("quiz_submitted", map[string]interface{}{
		"subscriber_id": subscriber.ID,
		"result_type":   resultType,
		"score":         score,
		"enqueued":      enqueued,
	})

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"result_type": resultType,
		"score":       score,
	}))
}

// Unsubscribe handles the public one-click link embedded in every email.
// An unknown token gets the same response as a valid one so the endpoint
// can't be used to probe for addresses.
func (qc *QuizController) Unsubscribe(c *fiber.Ctx) error {
	var subscriber models.Subscriber
	if err := qc.DB.Where("unsubscribe_token = ?", c.Params("token")).First(&subscriber).Error; err == nil {
		if _, err := unsubscribe(qc.DB, qc.Orchestrator, &subscriber); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unsubscribe", err)
		}
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "You have been unsubscribed.",
	}))
}
