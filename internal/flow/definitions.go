package flow

// Built-in flow definitions for the reading companion. All prompts address
// Dream of the Red Chamber (紅樓夢) and ask the provider for a JSON object
// matching the flow's output schema.

const jsonReplyHint = "請一律以繁體中文回答，並以 JSON 物件格式輸出，不要附加任何其他文字。"

// ExplainSelection explains a selected passage, optionally anchored to its
// surrounding context and a free-form reader question.
var ExplainSelection = &Definition{
	Name:        "explain-selection",
	Description: "解釋選取的原文段落",
	Input: Schema{Fields: []Field{
		{Name: "selection", Required: true, Description: "讀者選取的原文"},
		{Name: "chapter_context", Required: false, Description: "選段前後的上下文"},
		{Name: "question", Required: false, Description: "讀者的追問"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "explanation", Required: true, Description: "對選段的白話解釋"},
	}},
	SystemPrompt: "你是一位精通《紅樓夢》的文學導讀老師，擅長把古典文字講解給現代讀者。" + jsonReplyHint +
		" JSON 物件必須包含欄位 explanation。",
	Template: mustTemplate("explain-selection", `請解釋以下《紅樓夢》選段的意思、文學手法與言外之意。

選段：
{{.selection}}
{{if .chapter_context}}
選段所在的上下文：
{{.chapter_context}}
{{end}}{{if .question}}
讀者想進一步了解：{{.question}}
{{end}}`),
}

// ModernConnection connects a passage's theme to the reader's modern life.
// This flow uses the fallback policy: provider failures are masked by a
// canned body quoting the selection.
var ModernConnection = &Definition{
	Name:        "modern-connection",
	Description: "把選段主題連結到現代生活",
	Input: Schema{Fields: []Field{
		{Name: "selection", Required: true, Description: "讀者選取的原文"},
		{Name: "theme", Required: false, Description: "讀者關注的主題"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "insight", Required: true, Description: "古今連結的洞察"},
	}},
	SystemPrompt: "你是一位善於古今對照的《紅樓夢》讀書會主持人。" + jsonReplyHint +
		" JSON 物件必須包含欄位 insight。",
	Template: mustTemplate("modern-connection", `以下是《紅樓夢》中的一段文字，請把其中的主題連結到現代讀者的日常生活經驗。

選段：
{{.selection}}
{{if .theme}}
讀者特別想探討的主題：{{.theme}}
{{end}}`),
	Fallback: &Fallback{SourceField: "selection", TargetField: "insight"},
}

// CharacterInsight answers questions about a character.
var CharacterInsight = &Definition{
	Name:        "character-insight",
	Description: "分析人物性格與命運",
	Input: Schema{Fields: []Field{
		{Name: "character", Required: true, Description: "人物姓名"},
		{Name: "question", Required: false, Description: "讀者的問題"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "insight", Required: true, Description: "人物分析"},
	}},
	SystemPrompt: "你是研究《紅樓夢》人物的專家，熟悉每個角色的性格、判詞與命運。" + jsonReplyHint +
		" JSON 物件必須包含欄位 insight。",
	Template: mustTemplate("character-insight", `請分析《紅樓夢》人物「{{.character}}」的性格特點、與其他人物的關係，以及命運走向。
{{if .question}}
讀者特別想知道：{{.question}}
{{end}}`),
}

// ChapterSummary summarizes a chapter and names its themes.
var ChapterSummary = &Definition{
	Name:        "chapter-summary",
	Description: "摘要回目內容並點出主題",
	Input: Schema{Fields: []Field{
		{Name: "chapter_title", Required: true, Description: "回目名稱"},
		{Name: "chapter_text", Required: true, Description: "回目內文"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "summary", Required: true, Description: "情節摘要"},
		{Name: "themes", Required: true, Description: "本回主題"},
	}},
	SystemPrompt: "你是一位《紅樓夢》導讀編輯，擅長濃縮情節並點出主題。" + jsonReplyHint +
		" JSON 物件必須包含欄位 summary 與 themes。",
	Template: mustTemplate("chapter-summary", `請為《紅樓夢》的「{{.chapter_title}}」寫一段情節摘要，並歸納本回的主要主題。

內文：
{{.chapter_text}}`),
}

// AllusionGloss glosses a classical allusion or difficult phrase.
var AllusionGloss = &Definition{
	Name:        "allusion-gloss",
	Description: "註釋典故與艱澀詞語",
	Input: Schema{Fields: []Field{
		{Name: "phrase", Required: true, Description: "需要註釋的詞語或典故"},
		{Name: "context", Required: false, Description: "詞語出現的句子"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "gloss", Required: true, Description: "白話註釋"},
		{Name: "origin", Required: true, Description: "典故出處"},
	}},
	SystemPrompt: "你是一位古典文學註釋者，熟悉《紅樓夢》用典與清代口語。" + jsonReplyHint +
		" JSON 物件必須包含欄位 gloss 與 origin。",
	Template: mustTemplate("allusion-gloss", `請註釋《紅樓夢》中的詞語或典故「{{.phrase}}」，說明它的意思與出處。
{{if .context}}
它出現在這個句子裡：
{{.context}}
{{end}}`),
}

// PoetryAppreciation walks through a poem from the novel.
var PoetryAppreciation = &Definition{
	Name:        "poetry-appreciation",
	Description: "賞析書中詩詞",
	Input: Schema{Fields: []Field{
		{Name: "poem", Required: true, Description: "詩詞原文"},
		{Name: "occasion", Required: false, Description: "詩詞創作的情境"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "appreciation", Required: true, Description: "詩詞賞析"},
	}},
	SystemPrompt: "你是一位詩詞賞析老師，擅長講解《紅樓夢》中詩詞的意象與伏筆。" + jsonReplyHint +
		" JSON 物件必須包含欄位 appreciation。",
	Template: mustTemplate("poetry-appreciation", `請賞析《紅樓夢》中的這首詩詞，說明它的意象、格律與對情節的暗示。

詩詞：
{{.poem}}
{{if .occasion}}
創作情境：{{.occasion}}
{{end}}`),
}

// ReflectionQuestions generates discussion questions for a chapter.
var ReflectionQuestions = &Definition{
	Name:        "reflection-questions",
	Description: "產生閱讀思考題",
	Input: Schema{Fields: []Field{
		{Name: "chapter_title", Required: true, Description: "回目名稱"},
		{Name: "focus", Required: false, Description: "討論焦點"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "questions", Required: true, Description: "思考題清單"},
	}},
	SystemPrompt: "你是一位讀書會帶領人，擅長為《紅樓夢》設計開放式思考題。" + jsonReplyHint +
		" JSON 物件必須包含欄位 questions。",
	Template: mustTemplate("reflection-questions", `請為《紅樓夢》的「{{.chapter_title}}」設計三到五個開放式思考題，引導讀者反思。
{{if .focus}}
討論焦點：{{.focus}}
{{end}}`),
}

// LearningAnalytics turns the reader's activity summary into a study
// insight. This flow uses the fallback policy.
var LearningAnalytics = &Definition{
	Name:        "learning-analytics",
	Description: "根據閱讀紀錄產生學習洞察",
	Input: Schema{Fields: []Field{
		{Name: "reading_summary", Required: true, Description: "閱讀進度與活動摘要"},
		{Name: "recent_topics", Required: false, Description: "近期查詢過的主題"},
	}},
	Output: Schema{Fields: []Field{
		{Name: "insight", Required: true, Description: "學習洞察"},
		{Name: "suggestion", Required: true, Description: "下一步建議"},
	}},
	SystemPrompt: "你是一位閱讀教練，根據讀者的閱讀紀錄給出鼓勵性的學習洞察與具體建議。" + jsonReplyHint +
		" JSON 物件必須包含欄位 insight 與 suggestion。",
	Template: mustTemplate("learning-analytics", `以下是一位讀者閱讀《紅樓夢》的活動摘要，請給出學習洞察與下一步建議。

活動摘要：
{{.reading_summary}}
{{if .recent_topics}}
近期查詢過的主題：{{.recent_topics}}
{{end}}`),
	Fallback: &Fallback{SourceField: "reading_summary", TargetField: "insight"},
}

// Register built-in flows.
func init() {
	Register(ExplainSelection)
	Register(ModernConnection)
	Register(CharacterInsight)
	Register(ChapterSummary)
	Register(AllusionGloss)
	Register(PoetryAppreciation)
	Register(ReflectionQuestions)
	Register(LearningAnalytics)
}
