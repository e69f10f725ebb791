package user

import "time"

// User is a registered back-office account: staff or a named member who can
// hold a point balance and act on other balances.
type User struct {
	ID          int64     `gorm:"column:id;primaryKey" json:"id"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`
	Email       string    `gorm:"column:email;uniqueIndex" json:"email"`
	Phone       string    `gorm:"column:phone" json:"phone,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}
