package models

import (
	"encoding/json"
	"time"
)

// ContentProfile is the persisted questionnaire for one chat. One row per
// chat, overwritten on every save.
type ContentProfile struct {
	ChatID         string `gorm:"primaryKey;size:64"`
	Topic          string `gorm:"size:255"`
	Audience       string `gorm:"size:255"`
	Monetization   string `gorm:"size:32"`
	ProductDetails string `gorm:"type:text"`
	Preferences    string `gorm:"type:text"`
	Style          string `gorm:"size:255"`
	Emotions       string `gorm:"size:255"`
	Examples       string `gorm:"type:mediumtext"` // JSON array of Example
	ContentPlan    string `gorm:"type:mediumtext"`

	// Product repackaging answers. Independent of the plan questionnaire.
	RepackageAudience string `gorm:"size:255"`
	RepackageTool     string `gorm:"size:255"`
	RepackageResult   string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Example is one reference post supplied by the user, with an optional
// provenance note for forwarded messages ("переслано из канала X").
type Example struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// ExampleList decodes the Examples JSON column. A corrupt or empty column
// reads as no examples rather than an error.
func (p *ContentProfile) ExampleList() []Example {
	if p.Examples == "" {
		return nil
	}
	var out []Example
	if err := json.Unmarshal([]byte(p.Examples), &out); err != nil {
		return nil
	}
	return out
}

// SetExamples encodes examples into the Examples JSON column.
func (p *ContentProfile) SetExamples(examples []Example) error {
	if len(examples) == 0 {
		p.Examples = ""
		return nil
	}
	data, err := json.Marshal(examples)
	if err != nil {
		return err
	}
	p.Examples = string(data)
	return nil
}
