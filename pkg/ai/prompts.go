package ai

import (
	"strings"
)

// Prompts are written in Traditional Chinese to match the diary's primary
// audience; the model is instructed to answer in the same register.

const summarySystemPrompt = `你是一個專業的日記摘要助手，擅長從個人日記中提取核心信息並生成簡潔有意義的摘要。

你的任務是根據用戶的日記內容生成摘要，需要：
1. 保留日記的核心信息和重要細節
2. 維持原文的情感色彩和語調
3. 結構清晰，邏輯順暢
4. 使用自然流暢的繁體中文表達
5. 避免過度解釋或添加個人觀點
6. 摘要長度適中（通常為原文的 1/3 到 1/2）

根據用戶的特殊需求調整摘要重點和風格。`

// buildSummaryUserPrompt folds the optional custom requirement into the
// user prompt. For a multi-note summary the caller passes the concatenated
// text of all notes and multi=true, which adds the single-paragraph
// synthesis constraint.
func buildSummaryUserPrompt(noteText, customPrompt string, multi bool) string {
	var b strings.Builder
	b.WriteString("請為以下日記內容生成摘要：")
	if multi {
		b.WriteString("\n\n注意：以下包含多篇日記，請將它們綜合成一段連貫的摘要，不要逐篇分述。")
	}
	if custom := strings.TrimSpace(customPrompt); custom != "" {
		b.WriteString("\n\n特殊需求：")
		b.WriteString(custom)
	}
	b.WriteString("\n\n日記內容：\n")
	b.WriteString(noteText)
	return b.String()
}

const hashtagSystemPrompt = `你是一個專業的日記分析助手，擅長從日記內容中提取關鍵信息並生成相關的 hashtag。

你的任務是分析日記內容，並生成 3-6 個簡潔且有意義的 hashtag，涵蓋以下方面：
- 當天的主要活動或事件
- 情緒狀態或心情
- 出現的重要人物或關係
- 地點或場所
- 學習、工作或生活主題
- 特殊的體驗或感受

生成規則：
1. 每個 hashtag 保持簡潔（1-3 個詞）
2. 使用繁體中文
3. 不要包含 # 符號
4. 只輸出 hashtag，以逗號分隔
5. 不要輸出任何解釋或額外文字
6. 避免過於籠統的詞彙，要具體且有意義`

func buildHashtagUserPrompt(noteText string) string {
	var b strings.Builder
	b.WriteString("請分析以下日記內容，生成 3-6 個相關的 hashtag：\n\n日記內容：\n")
	b.WriteString(noteText)
	b.WriteString("\n\n請直接輸出 hashtag，格式：hashtag1,hashtag2,hashtag3")
	return b.String()
}

const notifySystemPrompt = "你是一個溫暖的日記助手，擅長根據用戶的日記內容生成個性化的鼓勵訊息。"

// noteDigest is one dated note text fed into the notification prompt.
type noteDigest struct {
	date string
	text string
}

func buildNotifyUserPrompt(entries []noteDigest) string {
	var b strings.Builder
	b.WriteString("基於以下用戶最近的日記內容，生成一個溫暖且個性化的通知訊息，鼓勵用戶繼續記錄日記。\n\n最近的日記內容：\n")
	for _, entry := range entries {
		b.WriteString("日期: ")
		b.WriteString(entry.date)
		b.WriteString("\n內容: ")
		b.WriteString(entry.text)
		b.WriteString("\n\n")
	}
	b.WriteString(`請生成一個簡短（50字以內）、溫暖且個性化的通知訊息，內容應該：
1. 反映用戶最近的生活狀態或情緒
2. 鼓勵用戶繼續記錄日記
3. 語調溫暖友善
4. 不要直接引用日記內容，而是基於內容生成相關的鼓勵

只返回通知訊息，不需要其他說明。`)
	return b.String()
}

const calendarSystemPrompt = `你是一個行程提取助手，擅長從日記內容中找出已確定或計劃中的行程與事件。

提取規則：
1. 只提取有明確日期或可推算日期的行程
2. 相對日期（例如「明天」、「下週三」）以提供的日記日期為基準換算
3. 嚴格輸出 JSON 陣列，格式：[{"time":"YYYYMMDD","event":"事件描述"}]
4. 不要輸出任何 JSON 以外的文字、說明或 markdown 標記
5. 找不到任何行程時輸出 []`

func buildCalendarUserPrompt(noteID, noteText string) string {
	var b strings.Builder
	b.WriteString("日記日期：")
	b.WriteString(noteID)
	b.WriteString("\n\n日記內容：\n")
	b.WriteString(noteText)
	b.WriteString("\n\n請提取其中的行程，直接輸出 JSON 陣列。")
	return b.String()
}
