package user

import "time"

type User struct {
	ID           int64      `gorm:"primaryKey"`
	Email        string     `gorm:"column:email;uniqueIndex;not null"`
	Name         string     `gorm:"column:name;not null"`
	Phone        string     `gorm:"column:phone"`
	Company      string     `gorm:"column:company"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	Roles        []UserRole `gorm:"foreignKey:UserID"`
}

func (User) TableName() string { return "users" }

// UserRole stores role names by value. A rename of the role rewrites these rows.
type UserRole struct {
	UserID    int64     `gorm:"column:user_id;primaryKey"`
	RoleName  string    `gorm:"column:role_name;primaryKey;index"`
	GrantedBy *int64    `gorm:"column:granted_by"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserRole) TableName() string { return "user_roles" }
