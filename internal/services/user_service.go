package services

import (
	"jns23lab_go_backend/internal/database"
	"jns23lab_go_backend/internal/models"

	"github.com/google/uuid"
)

func GetUserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	result := database.DB.Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, result.Error
	}
	return &user, nil
}
