package domain

import "time"

// MembershipRole 表示用户在会话中的角色。
type MembershipRole string

const (
	RoleHost   MembershipRole = "HOST"
	RoleMember MembershipRole = "MEMBER"
	RoleGuest  MembershipRole = "GUEST"
)

// MembershipStatus 表示用户在会话中的参与状态。
type MembershipStatus string

const (
	StatusParticipating MembershipStatus = "PARTICIPATING"
	StatusAway          MembershipStatus = "AWAY"
	StatusBanned        MembershipStatus = "BANNED"
	StatusRemoved       MembershipStatus = "REMOVED"
)

// Membership 表示一个用户在一个会话中的成员资格。
// (user, conversation) 对唯一；记录从不物理删除，离开/封禁/移除均通过状态迁移表示。
type Membership struct {
	ID             string           `gorm:"primaryKey;size:36" json:"id"`
	UserID         string           `gorm:"size:36;uniqueIndex:idx_user_conversation;not null" json:"user"`
	ConversationID string           `gorm:"size:36;uniqueIndex:idx_user_conversation;index;not null" json:"conversation"`
	Role           MembershipRole   `gorm:"type:varchar(20);not null" json:"role"`
	Status         MembershipStatus `gorm:"type:varchar(20);not null" json:"status"`
	PartnerID      *string          `gorm:"size:36" json:"partner,omitempty"` // 仅 DIRECT 会话填写，对端用户 ID
	BannedAt       *time.Time       `json:"bannedAt,omitempty"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`

	User         *User         `gorm:"foreignKey:UserID" json:"userInfo,omitempty"`
	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"conversationInfo,omitempty"`
}

// membershipTransitions 是成员状态机的集中迁移表。
// PARTICIPATING 是创建后的初始状态；AWAY/BANNED/REMOVED 为退出状态，
// 只能分别通过 host 重新添加或解除封禁回到 PARTICIPATING。
var membershipTransitions = map[MembershipStatus]map[MembershipStatus]bool{
	StatusParticipating: {
		StatusAway:    true, // leave
		StatusBanned:  true, // ban
		StatusRemoved: true, // host removes
	},
	StatusBanned: {
		StatusParticipating: true, // unban only
	},
	StatusAway: {
		StatusParticipating: true, // re-add only
	},
	StatusRemoved: {
		StatusParticipating: true, // re-add only
	},
}

// CanTransitionTo 报告成员状态是否允许从当前状态迁移到 next。
func (m *Membership) CanTransitionTo(next MembershipStatus) bool {
	allowed, ok := membershipTransitions[m.Status]
	if !ok {
		return false
	}
	return allowed[next]
}

// IsParticipating 报告该成员当前是否在会话中有效参与。
func (m *Membership) IsParticipating() bool {
	return m.Status == StatusParticipating
}
