package db

import (
	"time"

	"gorm.io/datatypes"
)

// ContentRow maps content.
type ContentRow struct {
	ID             string         `gorm:"column:id;primaryKey;size:36"`
	UserID         *string        `gorm:"column:user_id;size:64;index:idx_content_user"`
	Title          string         `gorm:"column:title;not null"`
	Description    string         `gorm:"column:description;not null;default:''"`
	ContentType    string         `gorm:"column:content_type;size:32;not null"`
	Visibility     string         `gorm:"column:visibility;size:32;not null;index:idx_content_visibility"`
	Tags           datatypes.JSON `gorm:"column:tags;not null"`
	OriginalAuthor *string        `gorm:"column:original_author"`
	PublishDate    *time.Time     `gorm:"column:publish_date"`
	CaptureDate    time.Time      `gorm:"column:capture_date;not null"`
	IsClaimed      bool           `gorm:"column:is_claimed;not null;default:false"`
	Embedding      *string        `gorm:"column:embedding"`
	Version        int64          `gorm:"column:version;not null;default:1"`
	DeletedAt      *time.Time     `gorm:"column:deleted_at;index:idx_content_deleted"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null"`
}

func (ContentRow) TableName() string { return "content" }

// ContentURLRow maps content_urls. Position keeps the caller's URL order.
type ContentURLRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:36"`
	ContentID string    `gorm:"column:content_id;size:36;not null;uniqueIndex:idx_content_urls_content_url,priority:1"`
	URL       string    `gorm:"column:url;not null;uniqueIndex:idx_content_urls_content_url,priority:2;index:idx_content_urls_url"`
	Position  int       `gorm:"column:position;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (ContentURLRow) TableName() string { return "content_urls" }

// MergeHistoryRow maps content_merge_history.
type MergeHistoryRow struct {
	ID               string         `gorm:"column:id;primaryKey;size:36"`
	PrimaryContentID string         `gorm:"column:primary_content_id;size:36;not null;index:idx_merge_history_primary"`
	MergedContentIDs datatypes.JSON `gorm:"column:merged_content_ids;not null"`
	MergedBy         string         `gorm:"column:merged_by;size:64;not null"`
	MergeReason      string         `gorm:"column:merge_reason;not null"`
	MergedMetadata   datatypes.JSON `gorm:"column:merged_metadata;not null"`
	CanUndo          bool           `gorm:"column:can_undo;not null;default:true"`
	UndoDeadline     time.Time      `gorm:"column:undo_deadline;not null"`
	CreatedAt        time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;not null"`
}

func (MergeHistoryRow) TableName() string { return "content_merge_history" }

// UserBadgeRow maps user_badges.
type UserBadgeRow struct {
	ID        string     `gorm:"column:id;primaryKey;size:36"`
	UserID    string     `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_user_badges_user_badge,priority:1"`
	Badge     string     `gorm:"column:badge;size:64;not null;uniqueIndex:idx_user_badges_user_badge,priority:2"`
	GrantedAt time.Time  `gorm:"column:granted_at;not null"`
	RevokedAt *time.Time `gorm:"column:revoked_at"`
}

func (UserBadgeRow) TableName() string { return "user_badges" }

func autoMigrateModels() []any {
	return []any{
		&ContentRow{},
		&ContentURLRow{},
		&MergeHistoryRow{},
		&UserBadgeRow{},
	}
}
