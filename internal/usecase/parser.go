package usecase

import (
	"regexp"
	"strings"
)

// Labels of the single-message intake format, in the order they must appear.
const (
	labelName   = "名前"
	labelHobby  = "趣味"
	labelRemark = "一言"
	labelTone   = "自己紹介のテイスト"
	labelAvatar = "アバタータイプ"
)

var structuredPattern = regexp.MustCompile(`(?s)` +
	labelName + `:(.*?)` +
	labelHobby + `:(.*?)` +
	labelRemark + `:(.*?)` +
	labelTone + `:(.*?)` +
	labelAvatar + `:(.*)$`)

// StructuredAnswers is the result of parsing one labelled intake message.
type StructuredAnswers struct {
	Name   string
	Hobby  string
	Remark string
	Tone   string
	Avatar string
}

// ParseStructured extracts all five answers from a labelled message. Text
// before the first label is ignored. Values may span lines and are trimmed;
// a missing, misplaced or empty field is a PARSE_FAILURE.
func ParseStructured(text string) (StructuredAnswers, error) {
	normalized := strings.ReplaceAll(text, "：", ":")
	m := structuredPattern.FindStringSubmatch(normalized)
	if m == nil {
		return StructuredAnswers{}, newError(ErrorParseFailure, "format_mismatch", nil)
	}
	values := make([]string, 5)
	for i := range values {
		values[i] = strings.TrimSpace(m[i+1])
		if values[i] == "" {
			return StructuredAnswers{}, newError(ErrorParseFailure, "empty_field", nil)
		}
	}
	return StructuredAnswers{
		Name:   values[0],
		Hobby:  values[1],
		Remark: values[2],
		Tone:   values[3],
		Avatar: values[4],
	}, nil
}

// parseAnswer accepts any non-blank text as the answer to the pending question.
func parseAnswer(text string) (string, bool) {
	answer := strings.TrimSpace(text)
	return answer, answer != ""
}

type avatarChoice int

const (
	choiceUnknown avatarChoice = iota
	choiceCatalog
	choiceUpload
)

var (
	affirmativeAnswers = map[string]struct{}{"はい": {}, "yes": {}, "y": {}, "うん": {}, "お願いします": {}, "ok": {}}
	negativeAnswers    = map[string]struct{}{"いいえ": {}, "no": {}, "n": {}, "いらない": {}}
)

// classifyChoice maps the "use a prepared avatar?" answer to a branch.
func classifyChoice(answer string) avatarChoice {
	a := strings.ToLower(strings.TrimSpace(answer))
	if _, ok := affirmativeAnswers[a]; ok {
		return choiceCatalog
	}
	if _, ok := negativeAnswers[a]; ok {
		return choiceUpload
	}
	return choiceUnknown
}
