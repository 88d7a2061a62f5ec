package domain

import "time"

// Answer keys collected during intake.
const (
	FieldName         = "name"
	FieldHobby        = "hobby"
	FieldRemark       = "remark"
	FieldTone         = "tone"
	FieldAvatarChoice = "avatar_choice"
	FieldAvatarGender = "avatar_gender"
	FieldProfileImage = "profile_image"
)

// Session is the in-flight intake state for one messaging user.
type Session struct {
	UserID      string
	Step        int
	Answers     map[string]string
	LastMessage string
	// Prompted reports whether the question for Step has been sent.
	Prompted bool
	// Version is the optimistic-concurrency counter maintained by stores.
	Version   int64
	UpdatedAt time.Time
}

// NewSession returns a session at step 0 with no answers.
func NewSession(userID string) Session {
	return Session{
		UserID:  userID,
		Answers: map[string]string{},
	}
}

// Clone returns a deep copy so callers can mutate answers safely.
func (s Session) Clone() Session {
	out := s
	out.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	return out
}

// AvatarSelection is either a catalog token or an uploaded image key.
type AvatarSelection struct {
	Token    string
	ImageKey string
}

// IsUpload reports whether the selection refers to a user-uploaded image.
func (a AvatarSelection) IsUpload() bool {
	return a.ImageKey != ""
}

// IntakeRequest holds the completed intake fields.
type IntakeRequest struct {
	UserID string
	Name   string
	Hobby  string
	Remark string
	Tone   string
	Avatar AvatarSelection
}
