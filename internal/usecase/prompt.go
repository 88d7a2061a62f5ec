package usecase

import (
	"fmt"
	"strings"

	"selfintro-bot/internal/domain"
)

const introLength = 200

func buildIntroMessages(req domain.IntakeRequest) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildIntroPolicy()},
		{Role: "user", Content: buildIntroRequest(req)},
	}
}

func buildIntroPolicy() string {
	return strings.Join([]string{
		"あなたは自己紹介文を書くアシスタントです。",
		"本人になりきって一人称で書いてください。",
		"読み上げ用の文章なので、箇条書きや記号、絵文字は使わないでください。",
		"自己紹介文だけを出力してください。",
	}, "\n")
}

func buildIntroRequest(req domain.IntakeRequest) string {
	return fmt.Sprintf(
		"以下の情報をもとに、%sテイストで%d文字程度の自己紹介文を作成してください。\n\n名前：%s\n趣味：%s\n一言：%s",
		normalizePromptInput(req.Tone),
		introLength,
		normalizePromptInput(req.Name),
		normalizePromptInput(req.Hobby),
		normalizePromptInput(req.Remark),
	)
}

func normalizePromptInput(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
