package usecase

import (
	"selfintro-bot/internal/domain"
)

// Intake steps. A session at stepReady is complete and must be reset.
const (
	stepName = iota
	stepHobby
	stepRemark
	stepTone
	stepAvatarChoice
	stepAvatarDetail
	stepReady
)

var stepFields = [...]string{
	stepName:         domain.FieldName,
	stepHobby:        domain.FieldHobby,
	stepRemark:       domain.FieldRemark,
	stepTone:         domain.FieldTone,
	stepAvatarChoice: domain.FieldAvatarChoice,
}

type transition struct {
	session domain.Session
	replies []domain.Reply
	ready   bool
}

// advance applies one text answer to sess. It never touches storage.
func advance(sess domain.Session, text string, d *Dispatcher) transition {
	next := sess.Clone()
	next.LastMessage = text

	if !next.Prompted || next.Step >= stepReady {
		fresh := domain.NewSession(sess.UserID)
		fresh.Version = sess.Version
		fresh.LastMessage = text
		fresh.Prompted = true
		return transition{session: fresh, replies: []domain.Reply{d.Greeting(), d.Question(fresh)}}
	}

	answer, ok := parseAnswer(text)
	if !ok {
		return transition{session: next, replies: []domain.Reply{d.Question(next)}}
	}

	switch next.Step {
	case stepAvatarChoice:
		if classifyChoice(answer) == choiceUnknown {
			return transition{session: next, replies: d.ChoiceRetry()}
		}
		next.Answers[domain.FieldAvatarChoice] = answer
		next.Step = stepAvatarDetail
	case stepAvatarDetail:
		if classifyChoice(next.Answers[domain.FieldAvatarChoice]) == choiceUpload {
			// only an image completes this branch
			return transition{session: next, replies: []domain.Reply{d.Question(next)}}
		}
		next.Answers[domain.FieldAvatarGender] = answer
		next.Step = stepReady
		return transition{session: next, ready: true}
	default:
		next.Answers[stepFields[next.Step]] = answer
		next.Step++
	}
	return transition{session: next, replies: []domain.Reply{d.Question(next)}}
}

// acceptsImage reports whether sess is waiting for a profile image.
func acceptsImage(sess domain.Session) bool {
	return sess.Prompted &&
		sess.Step == stepAvatarDetail &&
		classifyChoice(sess.Answers[domain.FieldAvatarChoice]) == choiceUpload
}

// attachImage records an uploaded profile image and completes the session.
func attachImage(sess domain.Session, key string) domain.Session {
	next := sess.Clone()
	next.Answers[domain.FieldProfileImage] = key
	next.Step = stepReady
	return next
}

// requestFromSession builds the intake request of a completed session.
func requestFromSession(sess domain.Session) domain.IntakeRequest {
	req := domain.IntakeRequest{
		UserID: sess.UserID,
		Name:   sess.Answers[domain.FieldName],
		Hobby:  sess.Answers[domain.FieldHobby],
		Remark: sess.Answers[domain.FieldRemark],
		Tone:   sess.Answers[domain.FieldTone],
	}
	if key := sess.Answers[domain.FieldProfileImage]; key != "" {
		req.Avatar = domain.AvatarSelection{ImageKey: key}
	} else {
		req.Avatar = domain.AvatarSelection{Token: sess.Answers[domain.FieldAvatarGender]}
	}
	return req
}

func requestFromStructured(userID string, a StructuredAnswers) domain.IntakeRequest {
	return domain.IntakeRequest{
		UserID: userID,
		Name:   a.Name,
		Hobby:  a.Hobby,
		Remark: a.Remark,
		Tone:   a.Tone,
		Avatar: domain.AvatarSelection{Token: a.Avatar},
	}
}
