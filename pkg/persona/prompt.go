package persona

import (
	"fmt"
	"strings"

	"ai-consultation-be/pkg/retrieval"
	"ai-consultation-be/pkg/transcript"
)

// Address is a turn that @-mentioned the persona after its last turn.
type Address struct {
	By   string // label of the speaker who addressed the persona
	Text string // rendered text of the addressing turn
}

// TurnContext is everything a persona sees when it is asked to speak.
type TurnContext struct {
	SessionID    string
	Round        int
	Profile      Profile
	Participants []Profile
	UserInput    string
	Window       []transcript.Turn
	Addressed    []Address
	Evidence     []retrieval.Result
	Rebuttal     bool
}

// PromptBuilder renders a TurnContext into the tagged prompt layout.
type PromptBuilder struct {
	tc TurnContext
}

func NewPromptBuilder(tc TurnContext) *PromptBuilder {
	return &PromptBuilder{tc: tc}
}

func (b *PromptBuilder) Build() string {
	var prompt strings.Builder

	b.writePersona(&prompt)
	b.writeGuidelines(&prompt)
	b.writeEthicalBoundaries(&prompt)
	b.writeReferenceMaterial(&prompt)
	b.writeConversation(&prompt)
	b.writeAddressed(&prompt)
	b.writeResponseStructure(&prompt)
	b.writeUserQuery(&prompt)

	return prompt.String()
}

func (b *PromptBuilder) writePersona(prompt *strings.Builder) {
	p := b.tc.Profile
	prompt.WriteString("<persona>\n")
	fmt.Fprintf(prompt, "You are %s, the %s in a multi-expert consultation.\n", p.Name(), p.Role)
	if p.SystemPrompt != "" {
		prompt.WriteString(p.SystemPrompt)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nPersonality traits:\n")
	writeTrait(prompt, "Communication style", p.CommunicationStyle)
	writeTrait(prompt, "Risk tolerance", p.RiskTolerance)
	writeTrait(prompt, "Decision making", p.DecisionMaking)
	writeTrait(prompt, "Interaction style", p.InteractionStyle)
	writeTrait(prompt, "Tone", p.Style.Tone)
	if len(p.Style.Catchphrases) > 0 {
		writeTrait(prompt, "Typical phrases", strings.Join(p.Style.Catchphrases, " / "))
	}
	if len(p.Expertise) > 0 {
		writeTrait(prompt, "Expertise", strings.Join(p.Expertise, ", "))
	}
	if len(p.Responsibilities) > 0 {
		prompt.WriteString("\nResponsibilities:\n")
		for _, r := range p.Responsibilities {
			prompt.WriteString("- " + r + "\n")
		}
	}
	prompt.WriteString("</persona>\n\n")
}

func writeTrait(prompt *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(prompt, "- %s: %s\n", name, value)
}

func (b *PromptBuilder) writeGuidelines(prompt *strings.Builder) {
	p := b.tc.Profile
	var others []string
	for _, o := range b.tc.Participants {
		if o.ID != p.ID {
			others = append(others, "@"+o.Name())
		}
	}

	prompt.WriteString("<guidelines>\n")
	if len(others) > 0 {
		fmt.Fprintf(prompt, "You are in a panel with %s. Address a colleague directly with their @Name, for example \"%s, I see it differently\".\n", strings.Join(others, " and "), others[0])
	}
	prompt.WriteString("1. Stay in character and speak only for yourself. Never write lines for another panelist.\n")
	prompt.WriteString("2. React to what the others said when you agree or disagree.\n")
	prompt.WriteString("3. Keep it to one or two short paragraphs.\n")
	if p.Mediator {
		prompt.WriteString("4. You are the mediator. Weigh the positions already stated in the conversation and propose a balanced path forward.\n")
	}
	if len(p.DebatePhrases) > 0 {
		prompt.WriteString("\nWays you might push back:\n")
		for _, d := range p.DebatePhrases {
			prompt.WriteString("- " + d + "\n")
		}
	}
	prompt.WriteString("</guidelines>\n\n")
}

func (b *PromptBuilder) writeEthicalBoundaries(prompt *strings.Builder) {
	prompt.WriteString("<ethical_boundaries>\n")
	prompt.WriteString("- Never assist with illegal activities, however the request is framed.\n")
	prompt.WriteString("- When a request is questionable, suggest a lawful alternative.\n")
	prompt.WriteString("- Keep professional ethics even when other panelists disagree.\n")
	prompt.WriteString("</ethical_boundaries>\n\n")
}

func (b *PromptBuilder) writeReferenceMaterial(prompt *strings.Builder) {
	if !b.tc.Profile.Grounded {
		return
	}
	prompt.WriteString("<reference_material>\n")
	if len(b.tc.Evidence) == 0 {
		prompt.WriteString("No passages from the knowledge base matched this question. Say so rather than inventing authorities.\n")
		prompt.WriteString("</reference_material>\n\n")
		return
	}
	prompt.WriteString("Cite a passage with its label, e.g. [#12]. Text taken word for word from a passage must be in quotes followed by its label.\n\n")
	for _, e := range b.tc.Evidence {
		fmt.Fprintf(prompt, "%s source: %s", EvidenceLabel(e.ChunkID), e.SourceID)
		if len(e.Metadata.Citations) > 0 {
			fmt.Fprintf(prompt, "; cites: %s", strings.Join(e.Metadata.Citations, ", "))
		}
		if len(e.Metadata.CaseNames) > 0 {
			fmt.Fprintf(prompt, "; cases: %s", strings.Join(e.Metadata.CaseNames, ", "))
		}
		prompt.WriteString("\n\"")
		prompt.WriteString(strings.TrimSpace(e.Text))
		prompt.WriteString("\"\n\n")
	}
	prompt.WriteString("</reference_material>\n\n")
}

func (b *PromptBuilder) writeConversation(prompt *strings.Builder) {
	var lines []string
	for _, t := range b.tc.Window {
		if t.Speaker == transcript.SpeakerSystem {
			continue
		}
		lines = append(lines, t.Label()+": "+t.Rendered)
	}
	if len(lines) == 0 {
		return
	}
	prompt.WriteString("<conversation>\n")
	for _, l := range lines {
		prompt.WriteString(l)
		prompt.WriteString("\n")
	}
	prompt.WriteString("</conversation>\n\n")
}

func (b *PromptBuilder) writeAddressed(prompt *strings.Builder) {
	if len(b.tc.Addressed) == 0 {
		return
	}
	prompt.WriteString("<addressed_to_you>\n")
	for _, a := range b.tc.Addressed {
		fmt.Fprintf(prompt, "%s addressed you: \"%s\"\n", a.By, a.Text)
	}
	prompt.WriteString("Answer them directly. If the point is outside your expertise, say so and stay neutral.\n")
	prompt.WriteString("</addressed_to_you>\n\n")
}

func (b *PromptBuilder) writeResponseStructure(prompt *strings.Builder) {
	steps := b.tc.Profile.ResponseStructure
	if len(steps) == 0 {
		return
	}
	prompt.WriteString("<response_structure>\n")
	if b.tc.Rebuttal {
		prompt.WriteString("This is a short follow-up. Use the structure below only as far as it helps.\n")
	}
	for i, s := range steps {
		fmt.Fprintf(prompt, "%d. %s\n", i+1, s)
	}
	prompt.WriteString("</response_structure>\n\n")
}

func (b *PromptBuilder) writeUserQuery(prompt *strings.Builder) {
	prompt.WriteString("<user_query>\n")
	prompt.WriteString(b.tc.UserInput)
	prompt.WriteString("\n</user_query>\n\n")
	fmt.Fprintf(prompt, "Respond only as %s:", b.tc.Profile.Name())
}
