package models

import "gorm.io/gorm"

// QuizResponse stores one visitor's quiz submission. Answers are kept as
// raw JSON so the quiz can change shape without migrations.
type QuizResponse struct {
	gorm.Model
	SubscriberID uint   `gorm:"not null;index" json:"subscriber_id"`
	Answers      string `gorm:"type:text" json:"answers"`
	Score        int    `json:"score"`
	ResultType   string `json:"result_type"` // advice archetype shown to the visitor

	Subscriber Subscriber `json:"-"`
}
