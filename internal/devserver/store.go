package devserver

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memeindex/memeindex/internal/backend"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// Store errors. Their messages are what the handlers put on the wire.
var (
	errUserExists     = apperr.New("USER_EXISTS", "User already registered")
	errUserNotFound   = apperr.New("USER_NOT_FOUND", "User not found")
	errInvalidCode    = apperr.New("INVALID_REFERRAL_CODE", "Invalid referral code")
	errSelfReferral   = apperr.New("SELF_REFERRAL", "Cannot use your own referral code")
	errAlreadyApplied = apperr.New("ALREADY_APPLIED", "Referral already applied")
	errTaskNotFound   = apperr.New("TASK_NOT_FOUND", "Task not found")
	errUnknownType    = apperr.New("UNKNOWN_TASK_TYPE", "Unknown task type")
)

// Task completion messages.
const (
	msgAlreadyCompleted = "Task already completed"
	msgNotEnoughInvites = "Not enough referrals yet"
)

type account struct {
	user      backend.User
	referrals int
}

type completionKey struct {
	userID int64
	taskID string
	day    string
}

// Store is the in-memory state of the development backend.
type Store struct {
	mu         sync.Mutex
	users      map[string]*account
	byUserID   map[int64]string
	byCode     map[string]string
	tasks      []backend.Task
	completed  map[completionKey]bool
	inviteGoal int
	now        func() time.Time
	newCode    func() string
}

// NewStore creates a store serving tasks.
func NewStore(tasks []backend.Task, inviteGoal int, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:      make(map[string]*account),
		byUserID:   make(map[int64]string),
		byCode:     make(map[string]string),
		tasks:      append([]backend.Task(nil), tasks...),
		completed:  make(map[completionKey]bool),
		inviteGoal: inviteGoal,
		now:        now,
		newCode:    referralCode,
	}
}

// referralCode derives a short invite code from a random UUID.
func referralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// IsRegistered reports whether key names a registered address or launch id.
func (s *Store) IsRegistered(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[key]; ok {
		return true
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		_, ok := s.byUserID[id]
		return ok
	}
	return false
}

// Register creates a user. An unknown referredBy code is ignored and the
// user is registered without a referrer.
func (s *Store) Register(req backend.RegisterRequest) (backend.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.Address]; ok {
		return backend.User{}, errUserExists
	}

	code := s.newCode()
	for s.byCode[code] != "" {
		code = s.newCode()
	}

	acct := &account{user: backend.User{
		Address:      req.Address,
		Username:     req.Username,
		UserID:       req.UserID,
		ReferralCode: code,
	}}
	if referrer, ok := s.users[s.byCode[req.ReferredBy]]; ok && req.ReferredBy != "" {
		acct.user.ReferredBy = req.ReferredBy
		referrer.referrals++
	}

	s.users[req.Address] = acct
	s.byCode[code] = req.Address
	if req.UserID > 0 {
		s.byUserID[req.UserID] = req.Address
	}
	return acct.user, nil
}

// User returns the user registered with address.
func (s *Store) User(address string) (backend.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[address]
	if !ok {
		return backend.User{}, 0, errUserNotFound
	}
	return acct.user, acct.referrals, nil
}

// ApplyReferral records that address was invited by the owner of code.
func (s *Store) ApplyReferral(address, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.users[address]
	if !ok {
		return errUserNotFound
	}
	if acct.user.ReferredBy != "" {
		return errAlreadyApplied
	}
	owner, ok := s.byCode[code]
	if !ok {
		return errInvalidCode
	}
	if owner == address {
		return errSelfReferral
	}

	acct.user.ReferredBy = code
	s.users[owner].referrals++
	return nil
}

// Tasks returns the task list with completion flags for userID.
func (s *Store) Tasks(userID int64) []backend.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]backend.Task, len(s.tasks))
	for i, t := range s.tasks {
		t.Completed = s.completed[s.keyLocked(userID, t)]
		out[i] = t
	}
	return out
}

// CompleteTask credits taskID to userID.
func (s *Store) CompleteTask(userID int64, taskID string) (backend.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.ID == taskID {
			return s.creditLocked(userID, t), nil
		}
	}
	return backend.TaskResult{}, errTaskNotFound
}

// VerifyTask checks and credits the first task of taskType for userID.
func (s *Store) VerifyTask(userID int64, taskType string) (backend.TaskResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch taskType {
	case backend.TaskInviteFriends, backend.TaskJoinBot, backend.TaskJoinGroup:
	default:
		return backend.TaskResult{}, errUnknownType
	}

	for _, t := range s.tasks {
		if t.Type != taskType {
			continue
		}
		if taskType == backend.TaskInviteFriends && !s.inviteGoalMetLocked(userID) {
			return backend.TaskResult{Message: msgNotEnoughInvites}, nil
		}
		return s.creditLocked(userID, t), nil
	}
	return backend.TaskResult{}, errTaskNotFound
}

func (s *Store) inviteGoalMetLocked(userID int64) bool {
	acct, ok := s.users[s.byUserID[userID]]
	return ok && acct.referrals >= s.inviteGoal
}

func (s *Store) creditLocked(userID int64, t backend.Task) backend.TaskResult {
	key := s.keyLocked(userID, t)
	if s.completed[key] {
		return backend.TaskResult{Message: msgAlreadyCompleted}
	}
	s.completed[key] = true
	return backend.TaskResult{Message: backend.TaskCompletedMessage, RewardVotes: t.RewardVotes}
}

// keyLocked scopes daily tasks to the current UTC day.
func (s *Store) keyLocked(userID int64, t backend.Task) completionKey {
	key := completionKey{userID: userID, taskID: t.ID}
	if t.IsDaily {
		key.day = s.now().UTC().Format(time.DateOnly)
	}
	return key
}

// Users returns the number of registered users.
func (s *Store) Users() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// DefaultTasks returns the seeded checklist for a bot.
func DefaultTasks(botUsername string) []backend.Task {
	return []backend.Task{
		{
			ID:          "invite-friends",
			Title:       "Invite 10 friends",
			Description: "Share your invite link with friends",
			RewardVotes: 100,
			Type:        backend.TaskInviteFriends,
		},
		{
			ID:          "join-bot",
			Title:       "Start the MemeIndex bot",
			Description: "Open the bot and press Start",
			RewardVotes: 50,
			Type:        backend.TaskJoinBot,
			ActionURL:   "https://t.me/" + botUsername,
		},
		{
			ID:          "join-group",
			Title:       "Join the community",
			Description: "Join the MemeIndex group chat",
			RewardVotes: 50,
			Type:        backend.TaskJoinGroup,
			ActionURL:   "https://t.me/memeindex_community",
		},
		{
			ID:          "daily-visit",
			Title:       "Visit memeindex.app",
			Description: "Check today's meme rankings",
			RewardVotes: 10,
			IsDaily:     true,
			Type:        backend.TaskCustom,
			ActionURL:   "https://memeindex.app",
		},
	}
}
