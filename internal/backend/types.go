package backend

// User is the registration record as returned by the backend.
type User struct {
	Address      string `json:"address"`
	Username     string `json:"username"`
	UserID       int64  `json:"userId,omitempty"`
	ReferralCode string `json:"referralCode,omitempty"`
	ReferredBy   string `json:"referredBy,omitempty"`
}

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	Address      string `json:"address"`
	Username     string `json:"username"`
	UserID       int64  `json:"userId,omitempty"`
	ReferralCode string `json:"referralCode,omitempty"`
	ReferredBy   string `json:"referredBy,omitempty"`
}

type registerResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user,omitempty"`
}

type isRegisteredResponse struct {
	IsRegistered bool `json:"isRegistered"`
}

// ReferralLink is the invite link for a user.
type ReferralLink struct {
	ReferralCode string `json:"referralCode"`
	ReferralLink string `json:"referralLink"`
	BotUsername  string `json:"botUsername"`
}

// ReferralStats is the invite count for a user.
type ReferralStats struct {
	ReferralCount int `json:"referralCount"`
}

// ApplyReferralRequest is the body of a referral apply call.
type ApplyReferralRequest struct {
	Address      string `json:"address"`
	ReferralCode string `json:"referralCode"`
}

// Task types known to the client.
const (
	TaskInviteFriends = "invite_friends"
	TaskJoinBot       = "join_bot"
	TaskJoinGroup     = "join_group"
	TaskCustom        = "custom"
)

// Task is one checklist entry.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	RewardVotes int    `json:"rewardVotes"`
	IsDaily     bool   `json:"isDaily"`
	Type        string `json:"type"`
	ActionURL   string `json:"actionUrl"`
	Completed   bool   `json:"completed"`
}

type tasksResponse struct {
	Tasks []Task `json:"tasks"`
}

// CompleteTaskRequest is the body of a task completion call.
type CompleteTaskRequest struct {
	UserID int64  `json:"userId"`
	TaskID string `json:"taskId"`
}

// VerifyTaskRequest is the body of a task verification call.
type VerifyTaskRequest struct {
	UserID   int64  `json:"userId"`
	TaskType string `json:"taskType"`
}

// TaskCompletedMessage is the message the backend returns when a task is
// credited.
const TaskCompletedMessage = "Task completed"

// TaskResult is the response of a complete or verify call.
type TaskResult struct {
	Message     string `json:"message"`
	RewardVotes int    `json:"rewardVotes"`
}

// Completed reports whether the task was credited by this call.
func (r TaskResult) Completed() bool {
	return r.Message == TaskCompletedMessage
}
