package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventModel 资金池操作审计
type EventModel struct {
	Id        int64     `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PoolId    string         `json:"pool_id" gorm:"index;not null"`
	EventType string         `json:"event_type" gorm:"index;not null"`
	Actor     string         `json:"actor"`
	Data      datatypes.JSON `json:"data"`
}

// TableName 自定义表名
func (EventModel) TableName() string {
	return "event"
}
