package gemini

// storyPromptData carries the book attributes injected into the story
// prompt template.
type storyPromptData struct {
	Title       string
	Description string
	Style       string
	PageCount   int
}

// storyPromptTemplate instructs the model to emit one chunk per page using
// the "PAGE N:" marker convention that the pipeline's decomposition step
// parses. Keeping the marker format here and in the splitter in sync matters
// more than the prose around it.
const storyPromptTemplate = `You are a children's book author. Write an illustrated story titled "{{.Title}}".
{{if .Description}}Story premise: {{.Description}}
{{end}}Visual style: {{.Style}}.

Write exactly {{.PageCount}} pages. Format each page as:

PAGE 1:
<text for page 1>

PAGE 2:
<text for page 2>

and so on through PAGE {{.PageCount}}. Keep each page under 1500 characters.
Do not add any commentary before PAGE 1 or after the last page.`
