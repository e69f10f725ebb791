package consumer

import "time"

// Consumer is a walk-in customer without a full account, identified at the
// counter by name and phone number.
type Consumer struct {
	ID          int64     `gorm:"column:id;primaryKey" json:"id"`
	DisplayName string    `gorm:"column:display_name" json:"display_name"`
	Phone       string    `gorm:"column:phone;uniqueIndex" json:"phone"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}
