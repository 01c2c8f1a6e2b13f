package domain

import (
	"strings"
	"time"
)

// RelationshipStatus 表示两个用户之间好友关系的状态。
type RelationshipStatus string

const (
	// RequestUserA 表示请求由 userA (规范序中较小的一方) 发起，等待 userB 接受
	RequestUserA RelationshipStatus = "REQUEST_USER_A"
	// RequestUserB 表示请求由 userB 发起，等待 userA 接受
	RequestUserB RelationshipStatus = "REQUEST_USER_B"
	Friends      RelationshipStatus = "FRIENDS"
	BlockedUserA RelationshipStatus = "BLOCKED_USER_A" // userA 实施的屏蔽
	BlockedUserB RelationshipStatus = "BLOCKED_USER_B" // userB 实施的屏蔽
	// RelationshipAway 初始/可复用的终止状态；删除关系不移除记录，而是迁移到这里
	RelationshipAway RelationshipStatus = "AWAY"
)

// Relationship 表示恰好两个用户之间的好友关系记录。
// (UserAID, UserBID) 以规范序存储：字典序较小的用户 ID 总是占据 UserAID 槽位，
// 这样每个无序用户对最多只有一行，查询时无需考虑两种顺序。
type Relationship struct {
	ID        string             `gorm:"primaryKey;size:36" json:"id"`
	UserAID   string             `gorm:"size:36;uniqueIndex:idx_user_pair;not null" json:"userA"`
	UserBID   string             `gorm:"size:36;uniqueIndex:idx_user_pair;not null" json:"userB"`
	Status    RelationshipStatus `gorm:"type:varchar(20);not null" json:"status"`
	BlockedAt *time.Time         `json:"blockedAt,omitempty"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updatedAt"`

	UserA *User `gorm:"foreignKey:UserAID" json:"userAInfo,omitempty"`
	UserB *User `gorm:"foreignKey:UserBID" json:"userBInfo,omitempty"`
}

// CanonicalPair 将两个用户 ID 按规范序排列 (字典序较小者在前)。
func CanonicalPair(u1, u2 string) (userA, userB string) {
	if strings.Compare(u1, u2) <= 0 {
		return u1, u2
	}
	return u2, u1
}

// IsParty 报告 userID 是否为该关系的一方。
func (r *Relationship) IsParty(userID string) bool {
	return r.UserAID == userID || r.UserBID == userID
}

// IsBlocked 报告该关系当前是否处于屏蔽状态。
func (r *Relationship) IsBlocked() bool {
	return r.Status == BlockedUserA || r.Status == BlockedUserB
}

// RequestStatusFor 返回由 requester 发起请求时应写入的状态。
// requester 必须是关系的一方。
func (r *Relationship) RequestStatusFor(requester string) RelationshipStatus {
	if requester == r.UserAID {
		return RequestUserA
	}
	return RequestUserB
}

// BlockStatusFor 返回由 blocker 实施屏蔽时应写入的状态。
func (r *Relationship) BlockStatusFor(blocker string) RelationshipStatus {
	if blocker == r.UserAID {
		return BlockedUserA
	}
	return BlockedUserB
}

// Blocker 返回实施屏蔽的一方的用户 ID；未处于屏蔽状态时返回空字符串。
func (r *Relationship) Blocker() string {
	switch r.Status {
	case BlockedUserA:
		return r.UserAID
	case BlockedUserB:
		return r.UserBID
	}
	return ""
}

// Requester 返回发起待处理请求的一方的用户 ID；非请求状态时返回空字符串。
func (r *Relationship) Requester() string {
	switch r.Status {
	case RequestUserA:
		return r.UserAID
	case RequestUserB:
		return r.UserBID
	}
	return ""
}
