// Package mock provides an offline consultant that answers persona prompts with
// scripted, topic-aware replies. It lets the whole consultation run without a
// model server.
package mock

import (
	"ai-consultation-be/pkg/llm"
	"context"
	"regexp"
	"strings"
	"time"
)

type Provider struct {
	// Latency simulates thinking time. Zero means answer immediately.
	Latency time.Duration
}

var _ llm.LLMProvider = &Provider{}

func NewProvider(latency time.Duration) *Provider {
	return &Provider{Latency: latency}
}

var (
	personaPattern = regexp.MustCompile(`You are ([A-Za-z][A-Za-z0-9-]*)`)
	queryPattern   = regexp.MustCompile(`(?s)<user_query>(.*?)</user_query>`)
)

type topic int

const (
	topicDefault topic = iota
	topicGreeting
	topicScraping
	topicTracking
)

var topicWords = []struct {
	topic topic
	words []string
}{
	{topicGreeting, []string{"hi", "hello", "hey", "greet"}},
	{topicScraping, []string{"scrape", "scraping", "data"}},
	{topicTracking, []string{"track", "tracking", "analytics"}},
}

var replies = map[string]map[topic]string{
	"legal": {
		topicGreeting: "Hello! I'm Legal-AI, your legal expert. I'm here to help you navigate legal complexities and identify potential risks. What legal matters can I assist you with today?",
		topicScraping: "I must advise caution regarding web scraping. This often violates Terms of Service and could expose you to legal action under the Computer Fraud and Abuse Act. Let's explore compliant alternatives.",
		topicTracking: "User tracking raises significant privacy law concerns. We need to consider GDPR, CCPA compliance, and ensure proper consent mechanisms are in place.",
		topicDefault:  "From a legal perspective, I need to evaluate the regulatory implications and potential risks involved. Could you provide more details about the specific legal aspects you're concerned about?",
	},
	"tech": {
		topicGreeting: "Hey there! I'm Tech-AI, your technical expert. I focus on practical solutions and efficient implementation. What technical challenge can I help you solve today?",
		topicScraping: "From a technical standpoint, web scraping is straightforward using tools like Scrapy, Beautiful Soup, or Selenium. @Legal-AI might be overthinking the compliance aspects - most basic data collection is fine.",
		topicTracking: "User tracking is easy to implement with Google Analytics, custom event tracking, or tools like Mixpanel. @Legal-AI, privacy compliance is just a matter of adding proper cookie banners.",
		topicDefault:  "This looks technically feasible. I can outline several implementation approaches using modern frameworks. What's the specific technical requirement you're trying to solve?",
	},
	"business": {
		topicGreeting: "Hello! I'm Business-AI, your strategic advisor. I help balance legal requirements with technical possibilities to achieve business objectives. What business challenge shall we tackle?",
		topicScraping: "I see both perspectives here. @Legal-AI raises valid compliance concerns, but @Tech-AI is right about competitive necessity. What if we start with publicly available data and explore API partnerships?",
		topicTracking: "User analytics can provide valuable business insights. Let's find a balanced approach that satisfies @Legal-AI's compliance requirements while meeting @Tech-AI's implementation efficiency.",
		topicDefault:  "Let's evaluate this from a business perspective - what's the ROI, competitive impact, and strategic value? I can help mediate between technical possibilities and legal constraints.",
	},
}

// Rebuttals never carry @-markers so a scripted round settles after one exchange.
var rebuttals = map[string]string{
	"legal":    "Respectfully, compliance is not overthinking. Terms of Service breaches and unauthorized access claims are real exposure, so any collection plan needs a documented legal basis first.",
	"tech":     "Fair point on the regulatory side. I can build it with rate limits, robots.txt checks and official APIs where they exist, which keeps the implementation clean.",
	"business": "Let me bring this together: the cautious path protects the brand, and the technical path keeps us competitive. A phased rollout gives us both.",
}

const genericReply = "I understand your query. Let me provide a thoughtful analysis based on my expertise."

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return p.Generate(ctx, b.String(), opts...)
}

func (p *Provider) Generate(ctx context.Context, prompt string, _ ...llm.Option) (string, error) {
	if p.Latency > 0 {
		select {
		case <-ctx.Done():
			return "", &llm.GenerationError{Provider: "mock", Err: ctx.Err()}
		case <-time.After(p.Latency):
		}
	}

	persona := personaKey(prompt)
	if persona == "" {
		return genericReply, nil
	}
	if strings.Contains(prompt, "<addressed_to_you>") {
		return rebuttals[persona], nil
	}
	return replies[persona][detectTopic(userQuery(prompt))], nil
}

func personaKey(prompt string) string {
	m := personaPattern.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	name := strings.ToLower(m[1])
	for key := range replies {
		if strings.HasPrefix(name, key) {
			return key
		}
	}
	return ""
}

func userQuery(prompt string) string {
	if m := queryPattern.FindStringSubmatch(prompt); m != nil {
		return strings.ToLower(m[1])
	}
	return strings.ToLower(prompt)
}

func detectTopic(query string) topic {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	for _, tw := range topicWords {
		for _, w := range tw.words {
			if set[w] {
				return tw.topic
			}
		}
	}
	return topicDefault
}
