// Package domain defines the persistence models for the organizational
// structure, its audit history, and the assistant's chat sessions. These
// types are mapped with GORM and form the core data layer of the service.
package domain

import (
	"time"
)

// EntityStructuralUnit tags history rows that describe a StructuralUnit.
const EntityStructuralUnit = "structural_unit"

// StructuralUnit is one node of the organizational forest (company,
// department, team, ...). Units are never removed through the API; a
// delete clears IsActive on the unit and its active descendants.
//
// Fields:
//   - ID: autoincrement primary key.
//   - Name: display name, unique among active siblings.
//   - CustomType: free-text classification ("Department", "Team"), may be empty.
//   - ParentID: nullable reference to the parent unit; nil marks a root.
//   - IsActive: false once soft-deleted.
//   - Level / Path: tree bookkeeping (depth and "/<root>/.../<id>/"), never audited.
//   - Children: direct children, loaded on demand.
type StructuralUnit struct {
	ID         uint      `json:"id"          gorm:"primaryKey;autoIncrement"`
	Name       string    `json:"name"        gorm:"type:varchar(100);not null;index:idx_units_parent_name,priority:2"`
	CustomType string    `json:"custom_type" gorm:"type:varchar(50);not null;default:'';index"`
	ParentID   *uint     `json:"parent_id"   gorm:"index:idx_units_parent_name,priority:1"`
	IsActive   bool      `json:"is_active"   gorm:"not null;default:true;index"`
	Level      int       `json:"level"       gorm:"not null;default:0"`
	Path       string    `json:"-"           gorm:"type:varchar(1024);not null;default:'';index"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Children are restricted on delete: a parent row cannot disappear
	// while children still reference it.
	Children []StructuralUnit `json:"children,omitempty" gorm:"foreignKey:ParentID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for StructuralUnit.
func (StructuralUnit) TableName() string { return "structural_units" }

// UnitHistory is an immutable snapshot of a unit written after every
// create, update and soft delete. Rows are linked to their predecessor so
// a diff can be computed without re-querying by date.
type UnitHistory struct {
	HistoryID     uint      `json:"history_id"      gorm:"primaryKey;autoIncrement"`
	EntityKind    string    `json:"entity_kind"     gorm:"type:varchar(32);not null;default:'structural_unit';index:idx_history_entity,priority:1"`
	UnitID        uint      `json:"unit_id"         gorm:"not null;index:idx_history_entity,priority:2"`
	Name          string    `json:"name"            gorm:"type:varchar(100);not null"`
	CustomType    string    `json:"custom_type"     gorm:"type:varchar(50);not null"`
	ParentID      *uint     `json:"parent_id"`
	IsActive      bool      `json:"is_active"       gorm:"not null"`
	Level         int       `json:"level"           gorm:"not null"`
	Path          string    `json:"-"               gorm:"type:varchar(1024);not null"`
	HistoryType   string    `json:"history_type"    gorm:"type:varchar(1);not null;check:history_type IN ('+','~','-')"`
	HistoryDate   time.Time `json:"history_date"    gorm:"not null;index"`
	HistoryUserID *string   `json:"history_user_id" gorm:"type:varchar(64)"`
	PrevHistoryID *uint     `json:"prev_history_id"`
}

// TableName returns the database table name for UnitHistory.
func (UnitHistory) TableName() string { return "structural_unit_history" }

// User maps a caller identity to a display name for audit output.
type User struct {
	ID        string    `json:"id"       gorm:"type:varchar(64);primaryKey"`
	Username  string    `json:"username" gorm:"type:varchar(150);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// ChatSession is the durable record of one assistant conversation.
// SessionID is the externally visible UUID also held in the caller's
// transient state.
type ChatSession struct {
	ID        uint      `json:"id"         gorm:"primaryKey;autoIncrement"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;uniqueIndex"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_sessions"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;default:''"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index:idx_user_sessions"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// ChatTurn is one message of a session transcript, authored by the
// "user" or the "assistant". Turns are append-only.
type ChatTurn struct {
	ID            string    `json:"id"      gorm:"type:char(36);primaryKey"`
	ChatSessionID uint      `json:"-"       gorm:"not null;index:idx_session_turns,priority:1"`
	Role          string    `json:"role"    gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	Content       string    `json:"content" gorm:"type:text;not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"index:idx_session_turns,priority:2"`

	// ChatSession is the owning session; turns are cascade-deleted with it.
	ChatSession ChatSession `json:"-" gorm:"foreignKey:ChatSessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatTurn.
func (ChatTurn) TableName() string { return "chat_turns" }

// AIQuery logs one answered prompt.
type AIQuery struct {
	ID            string    `json:"id"              gorm:"type:char(36);primaryKey"`
	UserID        string    `json:"user_id"         gorm:"type:varchar(64);not null;index"`
	Message       string    `json:"message"         gorm:"type:text;not null"`
	Response      string    `json:"response"        gorm:"type:text;not null"`
	ChatSessionID *uint     `json:"chat_session_id" gorm:"index"`
	CreatedAt     time.Time `json:"created_at"      gorm:"index"`

	ChatSession *ChatSession `json:"-" gorm:"foreignKey:ChatSessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for AIQuery.
func (AIQuery) TableName() string { return "ai_queries" }
