package ticket

import (
	"fmt"
	"strings"
)

// QA is one application question/answer pair as submitted by the website.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ApplicationForm is the applicant data shown in the announcement embed.
// Only CharName is required; everything else renders as an em dash when
// missing.
type ApplicationForm struct {
	CharName        string
	Age             int
	SteamHex        string
	DiscordTag      string
	HowFound        string
	Motivation      string
	Timezone        string
	WebsiteTicketId string
	Answers         []QA
}

// NormalizeAnswers drops pairs without an answer and numbers pairs without
// a question, so the announcement never renders blank fields.
func NormalizeAnswers(raw []QA) []QA {
	var out []QA
	for i, qa := range raw {
		answer := strings.TrimSpace(qa.Answer)
		if answer == "" {
			continue
		}
		question := strings.TrimSpace(qa.Question)
		if question == "" {
			question = fmt.Sprintf("Question %v", i+1)
		}
		out = append(out, QA{Question: question, Answer: answer})
	}
	return out
}
