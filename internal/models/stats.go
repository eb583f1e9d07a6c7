package models

import "time"

// CorrelationStats - сводка корреляций всех пар, прошедших анализ
// в одном запуске сканера
type CorrelationStats struct {
	ID        int       `json:"id" db:"id"`
	Date      time.Time `json:"date" db:"date"`
	Count     int       `json:"count" db:"count"`
	Mean      float64   `json:"mean" db:"mean"`
	Median    float64   `json:"median" db:"median"`
	Std       float64   `json:"std" db:"std"`
	Min       float64   `json:"min" db:"min"`
	Max       float64   `json:"max" db:"max"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
