package prompts

import (
	"fmt"
	"strings"
	"time"

	"github.com/nugget/lifetracker/internal/store"
)

// Persona selects the voice of a newsletter.
type Persona string

// Available personas.
const (
	PersonaMentor      Persona = "mentor"
	PersonaCheerleader Persona = "cheerleader"
	PersonaAnalyst     Persona = "analyst"
)

// Personas lists every persona.
var Personas = []Persona{PersonaMentor, PersonaCheerleader, PersonaAnalyst}

// ParsePersona returns the persona named s.
func ParsePersona(s string) (Persona, error) {
	p := Persona(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Personas {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown persona %q (valid: mentor, cheerleader, analyst)", s)
}

var personaVoices = map[Persona]string{
	PersonaMentor: `You are a thoughtful mentor. Reflect on the week with calm, honest
perspective. Connect what the user did to the goals they have told you
about, name one pattern worth noticing, and suggest one concrete next
step. Be kind but do not flatter.`,

	PersonaCheerleader: `You are an enthusiastic cheerleader. Celebrate every win from the week,
however small, and make the user feel their effort is seen. Turn open
tasks into exciting challenges. Keep the energy high and the tone warm.`,

	PersonaAnalyst: `You are a precise analyst. Summarize the week in numbers and trends:
how many entries, which categories dominate, which tasks are overdue or
due soon, and how the week compares with the previous newsletters.
Finish with two or three data-backed observations. No filler.`,
}

// newsletterTemplate format verbs: persona voice, greeting name, date,
// background, logs, tasks, previous issues.
const newsletterTemplate = `%s

Write this week's Life Tracker newsletter for %s. Today is %s.
Write in markdown with a short greeting, two to four sections with
headings, and a one-line sign-off from "The Life Tracker Team". Do not
invent events that are not in the data below. Do not repeat what the
previous newsletters already said.

## Background
%s

## Recent log entries (newest first)
%s

## Open tasks
%s

## Previous newsletters (newest first)
%s`

// NewsletterBundle is the data a newsletter is written from.
type NewsletterBundle struct {
	Name       string
	Email      string
	Now        time.Time
	Background store.Background
	Logs       []store.LogEntry
	Tasks      []store.Task
	Previous   []store.NewsletterLogEntry
}

// NewsletterPrompt renders the persona's prompt over the bundle.
func NewsletterPrompt(p Persona, b NewsletterBundle) string {
	voice, ok := personaVoices[p]
	if !ok {
		voice = personaVoices[PersonaMentor]
	}
	return fmt.Sprintf(newsletterTemplate,
		voice,
		GreetingName(b.Name, b.Email),
		b.Now.Format("Monday, January 2, 2006"),
		formatBackground(b.Background),
		formatLogs(b.Logs),
		formatTasks(b.Tasks),
		formatPrevious(b.Previous),
	)
}

// GreetingName is the user's first name, or the local part of their
// email when no name is known.
func GreetingName(name, email string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

// previousExcerpt bounds how much of each prior issue goes back into
// the prompt.
const previousExcerpt = 600

func formatPrevious(prev []store.NewsletterLogEntry) string {
	if len(prev) == 0 {
		return "None. This is the first newsletter."
	}
	var sb strings.Builder
	for _, n := range prev {
		body := n.Content
		if len(body) > previousExcerpt {
			body = body[:previousExcerpt] + "..."
		}
		fmt.Fprintf(&sb, "### %s (%s)\n%s\n\n", n.CreatedAt.Format("2006-01-02"), n.Persona, body)
	}
	return strings.TrimRight(sb.String(), "\n")
}
