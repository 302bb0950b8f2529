package controller

import (
	"log"
	"time"

	"heartwise/models"
	"heartwise/utils"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAuthController(db *gorm.DB, logger *log.Logger) *AuthController {
	return &AuthController{DB: db, Logger: logger}
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type setupInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

// Setup creates the first admin account. It only works while no admin
// exists; afterwards it always refuses.
func (ac *AuthController) Setup(c *fiber.Ctx) error {
	var count int64
	if err := ac.DB.Model(&models.User{}).Count(&count).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check existing accounts", err)
	}
	if count > 0 {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Setup has already been completed", nil)
	}

	var input setupInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to hash password", err)
	}

	user := models.User{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := ac.DB.Create(&user).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create admin account", err)
	}

	ac.Logger.Printf("Admin account created for %s", user.Email)
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"id":    user.ID,
		"email": user.Email,
	}))
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var input loginInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var user models.User
	if err := ac.DB.Where("email = ?", input.Email).First(&user).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid credentials", nil)
	}
	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
	}

	accessToken, refreshToken, err := utils.GenerateJWTTokens(&user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue tokens", err)
	}

	if err := ac.DB.Create(&models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store refresh token", err)
	}

	now := time.Now()
	ac.DB.Model(&user).Update("last_login_at", now)

	utils.LogEvent("admin_login", map[string]interface{}{"user_id": user.ID})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}))
}

type refreshInput struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	var input refreshInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var stored models.RefreshToken
	if err := ac.DB.Where("token = ? AND revoked_at IS NULL AND expires_at > ?",
		input.RefreshToken, time.Now()).First(&stored).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid or expired refresh token", nil)
	}

	claims, err := utils.ParseJWTToken(input.RefreshToken)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid refresh token", nil)
	}

	var user models.User
	if err := ac.DB.First(&user, claims.UserID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "User not found", nil)
	}

	accessToken, refreshToken, err := utils.GenerateJWTTokens(&user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue tokens", err)
	}

	// Rotate: revoke the old token, store the new one
	now := time.Now()
	ac.DB.Model(&stored).Update("revoked_at", now)
	ac.DB.Create(&models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	})

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
	}))
}

func (ac *AuthController) Logout(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	// Bumping the token version invalidates every outstanding access token
	if err := ac.DB.Model(user).Update("token_version", gorm.Expr("token_version + 1")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to log out", err)
	}
	now := time.Now()
	ac.DB.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", user.ID).
		Update("revoked_at", now)

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Logged out"}))
}

func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"id":            user.ID,
		"email":         user.Email,
		"name":          user.Name,
		"last_login_at": user.LastLoginAt,
	}))
}
