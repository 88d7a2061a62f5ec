package usecase

import (
	"strings"

	"selfintro-bot/internal/domain"
)

const (
	msgGreeting      = "こんにちは！自己紹介動画を作成します。いくつかの質問に答えてください。"
	msgAskName       = "まずはあなたのお名前を教えてください。"
	msgAskHobby      = "趣味は何ですか？"
	msgAskRemark     = "みんなに一言お願いします。"
	msgAskTone       = "自己紹介のテイストを教えてください。（例：明るい、真面目、ユーモラス）"
	msgAskChoice     = "用意されたアバターを使いますか？（はい／いいえ）"
	msgChoiceRetry   = "「はい」か「いいえ」で答えてください。"
	msgAskImage      = "プロフィール画像を送ってください。"
	msgAccepted      = "ありがとうございます！自己紹介動画を作成しています。完成まで少々お待ちください。"
	msgResend        = "メッセージを処理できませんでした。お手数ですがもう一度送信してください。"
	msgPollTimeout   = "動画の作成に時間がかかっています。しばらくしてからもう一度お試しください。"
	msgGenericFailed = "申し訳ありません。動画の作成中にエラーが発生しました。もう一度お試しください。"
)

// Dispatcher maps conversation outcomes to outbound messages. It holds no
// state beyond the avatar tokens it offers.
type Dispatcher struct {
	tokens []string
}

func NewDispatcher(avatarTokens []string) *Dispatcher {
	return &Dispatcher{tokens: append([]string(nil), avatarTokens...)}
}

func (d *Dispatcher) tokenList() string {
	return strings.Join(d.tokens, "／")
}

func (d *Dispatcher) Greeting() domain.Reply {
	return domain.TextReply(msgGreeting)
}

// Question returns the prompt for the session's current step.
func (d *Dispatcher) Question(sess domain.Session) domain.Reply {
	switch sess.Step {
	case stepName:
		return domain.TextReply(msgAskName)
	case stepHobby:
		return domain.TextReply(msgAskHobby)
	case stepRemark:
		return domain.TextReply(msgAskRemark)
	case stepTone:
		return domain.TextReply(msgAskTone)
	case stepAvatarChoice:
		return domain.TextReply(msgAskChoice)
	case stepAvatarDetail:
		if classifyChoice(sess.Answers[domain.FieldAvatarChoice]) == choiceUpload {
			return domain.TextReply(msgAskImage)
		}
		return domain.TextReply("アバタータイプを選んでください。（" + d.tokenList() + "）")
	}
	return domain.TextReply(msgAccepted)
}

func (d *Dispatcher) ChoiceRetry() []domain.Reply {
	return []domain.Reply{domain.TextReply(msgChoiceRetry), domain.TextReply(msgAskChoice)}
}

// FormatHelp is the template for single-message intake.
func (d *Dispatcher) FormatHelp() domain.Reply {
	return domain.TextReply(strings.Join([]string{
		"以下の形式で送ってください。",
		labelName + ":",
		labelHobby + ":",
		labelRemark + ":",
		labelTone + ":",
		labelAvatar + ":（" + d.tokenList() + "）",
	}, "\n"))
}

func (d *Dispatcher) Accepted() domain.Reply {
	return domain.TextReply(msgAccepted)
}

func (d *Dispatcher) Resend() domain.Reply {
	return domain.TextReply(msgResend)
}

// Result renders a finished pipeline run.
func (d *Dispatcher) Result(res domain.VideoResult, err error) []domain.Reply {
	if err != nil {
		return d.Failure(err)
	}
	return []domain.Reply{
		domain.TextReply(res.Introduction),
		domain.VideoReply(res.VideoURL, res.PreviewURL),
	}
}

// Failure picks the user-facing message for an error kind.
func (d *Dispatcher) Failure(err error) []domain.Reply {
	switch CodeOf(err) {
	case ErrorParseFailure:
		return []domain.Reply{d.FormatHelp()}
	case ErrorUnknownAvatarType:
		return []domain.Reply{domain.TextReply("指定されたアバタータイプは選べません。" + d.tokenList() + " のいずれかを指定してください。")}
	case ErrorPollTimeout:
		return []domain.Reply{domain.TextReply(msgPollTimeout)}
	case ErrorSessionConflict:
		return []domain.Reply{d.Resend()}
	}
	return []domain.Reply{domain.TextReply(msgGenericFailed)}
}
