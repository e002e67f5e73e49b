package devserver

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pageza/pantrycam/internal/types"
)

// StringList stores a []string as a JSON text column.
type StringList []string

// Value implements the driver.Valuer interface
func (a StringList) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the sql.Scanner interface
func (a *StringList) Scan(value interface{}) error {
	if value == nil {
		*a = StringList{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}

	return json.Unmarshal(bytes, a)
}

// User is an account of the reference backend.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"size:255;uniqueIndex;not null"`
	Name         string    `gorm:"size:255"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time
}

func (User) TableName() string {
	return "users"
}

// CatalogRecipe is a recipe the recommender can suggest.
type CatalogRecipe struct {
	ID           string     `gorm:"primaryKey;size:36"`
	Name         string     `gorm:"size:255;not null"`
	Cuisine      string     `gorm:"size:100"`
	CookingTime  string     `gorm:"size:50"`
	Difficulty   string     `gorm:"size:20"`
	Ingredients  StringList `gorm:"type:text;not null"`
	Instructions StringList `gorm:"type:text;not null"`
	Nutrition    string     `gorm:"type:text"`
	Tips         string     `gorm:"type:text"`
}

func (CatalogRecipe) TableName() string {
	return "recipes"
}

func (r CatalogRecipe) toAPI() types.Recipe {
	return types.Recipe{
		ID:           r.ID,
		Name:         r.Name,
		Cuisine:      r.Cuisine,
		CookingTime:  r.CookingTime,
		Difficulty:   r.Difficulty,
		Ingredients:  nonNil(r.Ingredients),
		Instructions: nonNil(r.Instructions),
		Nutrition:    r.Nutrition,
		Tips:         r.Tips,
	}
}

// SavedRecipe is a recipe saved by one user. A recipe saved twice under the
// same id is stored once.
type SavedRecipe struct {
	ID           string     `gorm:"primaryKey;size:36"`
	UserID       string     `gorm:"primaryKey;size:36"`
	Name         string     `gorm:"size:255;not null"`
	Cuisine      string     `gorm:"size:100"`
	CookingTime  string     `gorm:"size:50"`
	Difficulty   string     `gorm:"size:20"`
	Ingredients  StringList `gorm:"type:text;not null"`
	Instructions StringList `gorm:"type:text;not null"`
	Nutrition    string     `gorm:"type:text"`
	Tips         string     `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"index"`
}

func (SavedRecipe) TableName() string {
	return "saved_recipes"
}

func (r SavedRecipe) toAPI() types.SavedRecipe {
	return types.SavedRecipe{
		Recipe: types.Recipe{
			ID:           r.ID,
			Name:         r.Name,
			Cuisine:      r.Cuisine,
			CookingTime:  r.CookingTime,
			Difficulty:   r.Difficulty,
			Ingredients:  nonNil(r.Ingredients),
			Instructions: nonNil(r.Instructions),
			Nutrition:    r.Nutrition,
			Tips:         r.Tips,
		},
		SavedAt: r.CreatedAt,
	}
}

func savedFromAPI(userID string, r types.Recipe) SavedRecipe {
	return SavedRecipe{
		ID:           r.ID,
		UserID:       userID,
		Name:         r.Name,
		Cuisine:      r.Cuisine,
		CookingTime:  r.CookingTime,
		Difficulty:   r.Difficulty,
		Ingredients:  StringList(r.Ingredients),
		Instructions: StringList(r.Instructions),
		Nutrition:    r.Nutrition,
		Tips:         r.Tips,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
