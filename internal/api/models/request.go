package models

// LoginForm is the login form posted by the login page.
type LoginForm struct {
	Username     string `form:"username" binding:"required,max=50"`
	Password     string `form:"password" binding:"required,max=100"`
	UserTimezone string `form:"user_timezone" binding:"required,max=50"`
}

// MessageForm is the message form posted by the messages page.
type MessageForm struct {
	Message string `form:"message" binding:"required,max=500"`
}

// MessageQuery holds the optional filters of the message list.
type MessageQuery struct {
	Search string `form:"q" binding:"max=100"`
	From   string `form:"from"`
	To     string `form:"to"`
}

// AuditLogQuery holds the audit trail listing parameters.
type AuditLogQuery struct {
	Action string `form:"action" binding:"omitempty,oneof=login logout"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// Session cookie names.
const (
	CookieAccessToken  = "jwt_token"
	CookieRefreshToken = "refresh_token"
	CookieTimezone     = "user_timezone"
)
