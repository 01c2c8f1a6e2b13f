package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRelationshipNotFound = errors.New("relationship not found")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrMediaNotFound        = errors.New("media not found")

	// ErrUnauthorized 调用者缺少所需的角色或当事人身份
	ErrUnauthorized = errors.New("unauthorized user")
	// ErrAuthenticationFailed 凭证校验失败 (登录/令牌)
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrRegistrationFailed 用户名或邮箱已被占用
	ErrRegistrationFailed = errors.New("registration failed: username or email already exists")

	// ErrAlreadyExists 操作会产生重复记录 (关系已存在、成员已存在)
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrInvalidTransition 操作违反状态机前置条件 (已是好友、已被屏蔽、已是群主等)
	ErrInvalidTransition = errors.New("operation violates state precondition")

	// ErrInternalServer 校验通过后的持久化失败，细节只进日志不外泄
	ErrInternalServer = errors.New("internal server error")
)
