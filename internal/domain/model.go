package domain

import "time"

// UserModel is the GORM model for users table.
type UserModel struct {
	Username       string    `gorm:"type:varchar(150);primaryKey"`
	PasswordDigest string    `gorm:"type:varchar(100);not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		Username:       m.Username,
		PasswordDigest: m.PasswordDigest,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		Username:       u.Username,
		PasswordDigest: u.PasswordDigest,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// GroupModel is the GORM model for groups table. Names are not unique.
type GroupModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"type:varchar(200);index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for GroupModel.
func (GroupModel) TableName() string {
	return "groups"
}

// ToDomain converts GroupModel to domain Group.
func (m *GroupModel) ToDomain() Group {
	return Group{Name: m.Name}
}
