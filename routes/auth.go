package routes

import (
	"net/http"
	"time"

	"financial-qa-platform/internal/auth"
	"financial-qa-platform/internal/config"
	"financial-qa-platform/models"
	"financial-qa-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, tokens *auth.TokenManager) {
	group := router.Group("/auth")
	usersCollection := db.Collection("users")

	group.POST("/register", func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()

		var existing models.User
		if err := usersCollection.FindOne(ctx, bson.M{"username": req.Username}).Decode(&existing); err == nil {
			utils.RespondWithConflict(c, "Username already exists")
			return
		}

		hashedPassword, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to process password", nil)
			return
		}

		user := models.User{
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: hashedPassword,
			CreatedAt:    time.Now(),
		}

		result, err := usersCollection.InsertOne(ctx, user)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}

		userID := result.InsertedID.(primitive.ObjectID).Hex()
		pair, err := tokens.IssueTokenPair(ctx, userID, req.Username)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, pair)
		c.JSON(http.StatusCreated, gin.H{
			"user_id":  userID,
			"username": req.Username,
			"tokens":   pair,
		})
	})

	group.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()

		var user models.User
		if err := usersCollection.FindOne(ctx, bson.M{"username": req.Username}).Decode(&user); err != nil {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		pair, err := tokens.IssueTokenPair(ctx, user.ID.Hex(), user.Username)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, pair)
		c.JSON(http.StatusOK, gin.H{
			"user_id":  user.ID.Hex(),
			"username": user.Username,
			"tokens":   pair,
		})
	})

	group.POST("/refresh", func(c *gin.Context) {
		refreshToken, err := c.Cookie("refresh_token")
		if err != nil || refreshToken == "" {
			var body struct {
				RefreshToken string `json:"refresh_token" binding:"required"`
			}
			if bindErr := c.ShouldBindJSON(&body); bindErr != nil {
				utils.RespondWithUnauthorized(c, "Refresh token is required")
				return
			}
			refreshToken = body.RefreshToken
		}

		ctx := c.Request.Context()
		claims, err := tokens.ValidateRefreshToken(ctx, refreshToken)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid refresh token")
			return
		}

		// Rotate: old refresh token is dead after use.
		_ = tokens.RevokeToken(ctx, claims.ID, true)

		pair, err := tokens.IssueTokenPair(ctx, claims.UserID, claims.Username)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		setAuthCookies(c, cfg, pair)
		c.JSON(http.StatusOK, gin.H{"tokens": pair})
	})

	group.POST("/logout", func(c *gin.Context) {
		ctx := c.Request.Context()

		if accessToken := utils.ExtractTokenFromHeader(c.GetHeader("Authorization")); accessToken != "" {
			if claims, err := tokens.ValidateAccessToken(ctx, accessToken); err == nil {
				_ = tokens.RevokeToken(ctx, claims.ID, false)
			}
		}
		if refreshToken, err := c.Cookie("refresh_token"); err == nil && refreshToken != "" {
			if claims, err := tokens.ValidateRefreshToken(ctx, refreshToken); err == nil {
				_ = tokens.RevokeToken(ctx, claims.ID, true)
			}
		}

		secure := cfg.GinMode == "release"
		c.SetCookie("access_token", "", -1, "/", "", secure, true)
		c.SetCookie("refresh_token", "", -1, "/", "", secure, true)

		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})
}

func setAuthCookies(c *gin.Context, cfg *config.Config, pair *auth.TokenPair) {
	secure := cfg.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("access_token", pair.AccessToken,
		int(time.Until(pair.AccessExp).Seconds()), "/", "", secure, true)
	c.SetCookie("refresh_token", pair.RefreshToken,
		int(time.Until(pair.RefreshExp).Seconds()), "/", "", secure, true)
}
