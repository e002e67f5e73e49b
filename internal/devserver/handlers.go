package devserver

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/pageza/pantrycam/internal/types"
)

const maxUploadBytes = 10 << 20

func (s *Server) login(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := s.auth.Login(req)
	if errors.Is(err, ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "Invalid email or password"})
		return
	}
	if err != nil {
		s.internalError(c, "login failed", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) register(c *gin.Context) {
	var req types.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	resp, err := s.auth.Register(req)
	if errors.Is(err, ErrUserExists) {
		c.JSON(http.StatusConflict, types.ErrorResponse{Error: "An account with this email already exists"})
		return
	}
	if err != nil {
		s.internalError(c, "register failed", err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) detect(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "image file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "could not read upload"})
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "could not read upload"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{Error: "image is too large"})
		return
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "file must be an image"})
		return
	}

	names, err := s.detector.Detect(c.Request.Context(), header.Filename, data)
	if err != nil {
		s.internalError(c, "detection failed", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, types.RecognitionResponse{Ingredients: names})
}

func (s *Server) recommend(c *gin.Context) {
	var req types.RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "Invalid request body"})
		return
	}
	var catalog []CatalogRecipe
	if err := s.db.WithContext(c.Request.Context()).Find(&catalog).Error; err != nil {
		s.internalError(c, "failed to load catalog", err)
		return
	}
	c.JSON(http.StatusOK, types.RecommendResponse{Recipes: Recommend(catalog, req.Ingredients)})
}

func (s *Server) getRecipe(c *gin.Context) {
	id := c.Param("id")
	db := s.db.WithContext(c.Request.Context())

	var recipe CatalogRecipe
	if err := db.First(&recipe, "id = ?", id).Error; err == nil {
		c.JSON(http.StatusOK, recipe.toAPI())
		return
	}
	var saved SavedRecipe
	if err := db.First(&saved, "id = ? AND user_id = ?", id, c.GetString(userIDKey)).Error; err == nil {
		c.JSON(http.StatusOK, saved.toAPI().Recipe)
		return
	}
	c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "Recipe not found"})
}

func (s *Server) saveRecipe(c *gin.Context) {
	var recipe types.Recipe
	if err := c.ShouldBindJSON(&recipe); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	if recipe.ID == "" {
		recipe.ID = uuid.New().String()
	}

	row := savedFromAPI(c.GetString(userIDKey), recipe)
	err := s.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "cuisine", "cooking_time", "difficulty", "ingredients", "instructions", "nutrition", "tips",
		}),
	}).Create(&row).Error
	if err != nil {
		s.internalError(c, "failed to save recipe", err)
		return
	}
	c.JSON(http.StatusCreated, row.toAPI())
}

func (s *Server) listSaved(c *gin.Context) {
	var rows []SavedRecipe
	err := s.db.WithContext(c.Request.Context()).
		Where("user_id = ?", c.GetString(userIDKey)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		s.internalError(c, "failed to list saved recipes", err)
		return
	}

	page := types.SavedRecipesPage{Recipes: make([]types.Recipe, 0, len(rows)), Total: len(rows)}
	for _, r := range rows {
		page.Recipes = append(page.Recipes, r.toAPI().Recipe)
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) removeSaved(c *gin.Context) {
	result := s.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", c.Param("id"), c.GetString(userIDKey)).
		Delete(&SavedRecipe{})
	if result.Error != nil {
		s.internalError(c, "failed to remove recipe", result.Error)
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "Saved recipe not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg(msg)
	c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "Internal Server Error"})
}
