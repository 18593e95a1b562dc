package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project 一个录音项目，拥有一组有序的提示文本
type Project struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null;uniqueIndex"`
	IsRTL     bool      `json:"is_rtl" gorm:"column:is_rtl;not null;default:false"` // 从右到左书写
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Project) TableName() string { return "projects" }

// Prompt 待录制的一句文本。OrderIndex 从 0 开始，创建后不再修改
type Prompt struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	ProjectID  uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_prompt_project_order,priority:1"`
	Text       string    `json:"text" gorm:"type:text;not null"`
	OrderIndex int       `json:"order_index" gorm:"not null;uniqueIndex:idx_prompt_project_order,priority:2"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (Prompt) TableName() string { return "prompts" }

// Recording 一条录音。ProjectID 与 PromptID 总是来自同一次 Prompt 查询；
// PromptID 只是用于排序的反向引用，不表示所有权
type Recording struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	Text       string    `json:"text" gorm:"type:text"` // 提示文本冗余副本
	Filename   string    `json:"filename" gorm:"size:255;index"`
	RecordedAt time.Time `json:"recorded_at" gorm:"autoCreateTime"`
	ProjectID  uint      `json:"project_id" gorm:"not null;uniqueIndex:idx_recording_project_prompt,priority:1"`
	PromptID   uint      `json:"prompt_id" gorm:"not null;index;uniqueIndex:idx_recording_project_prompt,priority:2"`
}

func (Recording) TableName() string { return "recordings" }

// Setting 键值配置
type Setting struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Key   string `json:"key" gorm:"size:255;not null;uniqueIndex"`
	Value string `json:"value" gorm:"type:text"`
}

func (Setting) TableName() string { return "settings" }

// Interaction 用户操作审计记录
type Interaction struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Action    string         `json:"action" gorm:"size:255;index"`
	Data      datatypes.JSON `json:"data"`
	Timestamp time.Time      `json:"timestamp" gorm:"autoCreateTime;index"`
}

func (Interaction) TableName() string { return "interactions" }

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Setting{}, &Project{}, &Prompt{}, &Recording{}, &Interaction{})
}
