// Package prompts holds the counselor persona and the templates the agent fills in.
package prompts

import (
	"fmt"
	"strings"
	"text/template"
)

// InitialInputs are the variables of the main counseling prompt.
type InitialInputs struct {
	LendersData         string
	StudentDetails      string
	ConversationHistory string
	SimilarCases        string
	PastConversations   string
	MatchingLenders     string
	StudentMessage      string
}

// QueryInputs are the variables of the follow-up question prompt.
type QueryInputs struct {
	ConversationHistory string
	Query               string
}

const initialPrompt = `You are a friendly and knowledgeable education loan counselor helping students who plan to study abroad.
Give clear, honest guidance about loan options. Only recommend lenders from the list below, quote their terms exactly,
and say so when none of them fits the student's situation. Keep answers concise and ask for missing information when needed.

Available lenders:
{{.LendersData}}

Lenders most relevant to this student:
{{or .MatchingLenders "None found."}}

Student details:
{{.StudentDetails}}

Recommendations given to students with similar profiles:
{{or .SimilarCases "None yet."}}

Earlier exchanges with this student related to the question:
{{or .PastConversations "None."}}

Conversation so far:
{{or .ConversationHistory "This is the start of the conversation."}}

Student: {{.StudentMessage}}
Counselor:`

const queryRecommendationPrompt = `You help students navigate education loans.
Based on the conversation below and the student's latest question, suggest 3 short follow-up questions
the student could ask next. Return them as a numbered list with no extra text.

Conversation so far:
{{or .ConversationHistory "This is the start of the conversation."}}

Latest question: {{.Query}}`

var (
	initialTmpl = template.Must(template.New("initial").Option("missingkey=error").Parse(initialPrompt))
	queryTmpl   = template.Must(template.New("query_recommendation").Option("missingkey=error").Parse(queryRecommendationPrompt))
)

// RenderInitial fills the main counseling prompt.
func RenderInitial(in InitialInputs) (string, error) {
	return render(initialTmpl, in)
}

// RenderQueryRecommendation fills the follow-up question prompt.
func RenderQueryRecommendation(in QueryInputs) (string, error) {
	return render(queryTmpl, in)
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
