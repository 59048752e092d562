package domain

import "time"

type RateBucket struct {
	IP        string    `gorm:"column:ip;primaryKey"`
	Endpoint  string    `gorm:"primaryKey"`
	Minute    int       `gorm:"not null"`
	Count     int64     `gorm:"not null;default:1"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (RateBucket) TableName() string { return "ip_call_count" }
