package policy

import "regexp"

type Category string

const (
	CategoryForgery            Category = "forgery"
	CategoryFraud              Category = "fraud"
	CategoryUnauthorizedAccess Category = "unauthorized_access"
	CategoryMalware            Category = "malware"
	CategoryTheft              Category = "theft"
	CategoryFinancialCrime     Category = "financial_crime"
	CategoryViolence           Category = "violence"
	CategoryDrugs              Category = "drugs"
	CategoryCircumvention      Category = "circumvention"
)

// rule matches normalized text. Strong rules are disallowed on sight; the
// rest need an intent frame in the same sentence.
type rule struct {
	category Category
	pattern  *regexp.Regexp
	strong   bool
	// except marks benign uses; a hit overlapping an except match is ignored.
	except *regexp.Regexp
	// strictObjects voids except when the sentence names sensitive objects.
	strictObjects bool
}

func re(expr string) *regexp.Regexp {
	return regexp.MustCompile(expr)
}

// The rule set is fixed at compile time; nothing extends or disables it at runtime.
var rules = []rule{
	{
		category: CategoryForgery,
		pattern:  re(`\bforg(e|es|ed|ing|ery|eries)\b`),
		except:   re(`\bforg(e|es|ed|ing) (ahead|on|forward|(a |an |new |strong |lasting )?(partnerships?|relationships?|path|bonds?|alliances?|ties|links|consensus|deal|future))\b`),
	},
	{category: CategoryForgery, pattern: re(`\bcounterfeit\w*`)},
	{category: CategoryForgery, pattern: re(`\b(fake|phony|bogus|falsified?) (signatures?|ids?|passports?|documents?|diplomas?|invoices?|receipts?|licen[cs]es?|notary|doctors? notes?)\b`)},
	{category: CategoryForgery, pattern: re(`\bfalsif(y|ies|ied|ying) (\w+ ){0,2}(records?|documents?|signatures?|invoices?|books|accounts|evidence)\b`)},
	{category: CategoryForgery, pattern: re(`\bsign (someone|somebody|another person|another persons|my \w+s|his|her|their) (else |elses )?(name|signature)\b`)},
	{category: CategoryForgery, pattern: re(`\b(copy|copying|replicate|replicating|trace|tracing|imitate|imitating|mimic|mimicking) (\w+ ){0,5}signatures?\b`)},
	{category: CategoryForgery, pattern: re(`\bsignature (look|looks|appear|appears) like\b`)},

	{
		category: CategoryFraud,
		pattern:  re(`\b(fraud\w*|scam\w*|phish\w*|ponzi|pyramid scheme|embezzl\w*|kickbacks?)\b`),
		except:   re(`\b(detect|prevent|report|avoid|spot|identify|combat|fight|stop|recogni[sz]e)(s|ed|ing)? (\w+ ){0,2}(fraud|scams?|phishing)\b|\b(fraud|scam|phishing) (detection|prevention|protection|awareness|training|alerts?|monitoring|reporting|simulation)\b`),
	},

	{category: CategoryUnauthorizedAccess, pattern: re(`\bhack(s|ed|ing)?\b`), except: re(`\b(growth|life|productivity|marketing) hack`)},
	{category: CategoryUnauthorizedAccess, pattern: re(`\bbypass(es|ed|ing)? (the |their |a |an |its |any )?(security|authentication|login|paywall|drm|2fa|mfa|captcha|firewall|access controls?)\b`)},
	{category: CategoryUnauthorizedAccess, pattern: re(`\bcrack(s|ed|ing)? (a |the |their |someones |his |her )?(password|passwords|wifi|licen[cs]e|software|encryption|account)\b`)},
	{category: CategoryUnauthorizedAccess, pattern: re(`\bbrute forc(e|ing)\b|\bcredential stuffing\b`)},
	{category: CategoryUnauthorizedAccess, pattern: re(`\b(break|get|log|sneak) into (an |the |a |someones |someone elses |my \w+s |his |her |their )?(\w+ )?(account|accounts|system|network|server|email|inbox|phone|computer|database)\b`)},

	{category: CategoryMalware, strong: true, pattern: re(`\b(write|create|build|make|code|develop|deploy|spread|distribute|install|plant)(s|ing)? (a |an |some |my own |me a |me an |me |custom )?(malware|virus|computer virus|ransomware|trojan|worm|keylogger|botnet|spyware|rootkit|backdoor)\b`)},
	{category: CategoryMalware, strong: true, pattern: re(`\b(launch|run|start|perform|conduct|do) (a |an )?ddos\b`)},
	{category: CategoryMalware, pattern: re(`\b(malware|ransomware|keylogger|botnet|spyware|rootkit|ddos)\b`)},

	{
		category:      CategoryTheft,
		pattern:       re(`\b(steal|steals|stealing|stole|stolen|shoplift\w*|pirate|pirated|pirating|piracy|identity theft)\b`),
		except:        re(`\bsteal(s|ing)? (the |their |our |your |some |more )?(market share|thunder|show|spotlight|talent|customers|clients|users|business|ideas|attention)\b`),
		strictObjects: true,
	},
	{category: CategoryTheft, pattern: re(`\btorrent(ing)? (\w+ )?(movies|films|software|games|music|books)\b`)},

	{category: CategoryFinancialCrime, pattern: re(`\b(launder\w*|money laundering|tax evasion|evade (my |our |the )?tax(es)?|insider trading|front running)\b`)},
	{category: CategoryFinancialCrime, pattern: re(`\bhide (my |our |the )?(income|money|assets|earnings|profits) from (the )?(irs|tax\w*|government|auditors?)\b`)},

	{category: CategoryViolence, strong: true, pattern: re(`\b(make|build|assemble|construct)(s|ing)? (a |an |my own )?(bomb|pipe bomb|explosives?|ghost gun|untraceable gun|molotov)\b`)},
	{category: CategoryViolence, pattern: re(`\b(hurt|poison|kill|attack|assault) (someone|somebody|people|him|her|them|my \w+)\b`)},

	{category: CategoryDrugs, pattern: re(`\b` + drugMaking + ` (\w+ ){0,3}` + controlledSubstance + `\b`), except: re(drugCharge + drugMaking + ` (\w+ ){0,3}` + controlledSubstance + `\b`)},
	{category: CategoryDrugs, pattern: re(`\b` + drugTrading + ` (\w+ ){0,3}` + controlledSubstance + `\b`), except: re(drugCharge + drugTrading + ` (\w+ ){0,3}` + controlledSubstance + `\b`)},
	{category: CategoryDrugs, pattern: re(`\b(meth|cocaine|heroin|fentanyl) (lab|recipe|cook)\b`)},

	{category: CategoryCircumvention, strong: true, pattern: re(`\b(ignore|disregard|forget|override)(s|ing)? (all |any |of )*(your |previous |prior |earlier |above |these |those |its |the system |the above |the previous |my previous )+(\w+ )?(instructions|rules|polic(y|ies)|guidelines|guardrails|restrictions|filters?|ethics|boundaries|prompt|programming)\b`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\b(ignore|disregard|forget|override)(s|ing)? ((all|any) (the )?(rules|polic(y|ies)|restrictions|guidelines|filters?)|(the )?(instructions|prompts?|programming|guardrails|safety (rules|guidelines|filters?)|content polic(y|ies)))\b`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\b(developer|dev|god|unrestricted|jailbreak|dan) mode\b|\bjailbr(eak|oken|eaking)\b|\bdo anything now\b`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\b(pretend|act as if|act like|imagine|suppose)(ing)? (that )?(you are|youre|you have|to be|there are|there is)\b.*\b(no|without|zero) (rules|restrictions|limits|filters|ethics|polic(y|ies)|guidelines|boundaries)\b`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\b(ai|assistant|model|bot|chatbot|you|persona|character) (with|without|that has|who has|having) (no|zero) (rules|restrictions|limits|filters|ethics|polic(y|ies)|guidelines|boundaries)\b`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\b(you|youre|you are|ai|assistant|model|bot|persona) (now |officially )?(have|has|got|are under|operate with|run with) (absolutely )?(no|zero) (more )?(rules|restrictions|limits|limitations|filters|ethics|polic(y|ies)|guidelines|boundaries|guardrails)( (anymore|whatsoever|at all|now|from now on|today))?$`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\bfrom now on\b.*\b(you|youre)\b.*\b(no|without|zero|free of) (rules|restrictions|limits|limitations|filters|ethics|polic(y|ies)|guidelines|boundaries|guardrails)( (anymore|whatsoever|at all))?$`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\b(you are|youre) no longer (bound|restricted|limited|governed|constrained) by\b`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\byou are (now )?(free|allowed|permitted) (from|to ignore|to break)\b|\b(turn|switch) off (your |the )?(filter|filters|safety|policy|guard)\b`)},
	{category: CategoryCircumvention, strong: true, pattern: re(`\bbypass(es|ed|ing)? (your |the |this )?(filter|filters|guard|policy|safety|content policy|moderation)\b`)},
}

const (
	// controlledSubstance names illicit drugs, never medicines in general.
	controlledSubstance = `(meth|methamphetamine|crystal meth|cocaine|crack cocaine|heroin|fentanyl|carfentanil|lsd|mdma|ecstasy|ghb|pcp|opium|illegal drugs|illicit drugs|street drugs)`

	drugMaking  = `(cook|cooks|cooking|make|makes|making|synthesi[sz]e|synthesi[sz]es|synthesi[sz]ing|manufacture|manufactures|manufacturing|produce|producing|brew|brewing|extract|extracting|grow|growing)`
	drugTrading = `(sell|sells|selling|deal|dealing|push|pushing|smuggle|smuggles|smuggling|traffic|trafficking|ship|shipping|mail|mailing|distribute|distributing|move|moving|buy|buying)`

	// drugCharge marks questions about a prosecution: "charged with selling heroin".
	drugCharge = `\b(charged|accused|convicted|arrested|indicted|prosecuted|sentenced|penalty|penalties|punishment|sentence|offense|offence|crime|law|laws|statute) (\w+ ){0,3}`
)

var (
	// actionable request frames: the speaker wants the act performed or explained.
	requestFrame = re(`\b(how (do|can|would|could|should|might|does) (i|we|you|one|someone|somebody|people)|how to|hows|help me|help us|teach me|show me|tell me how|explain how|steps? (to|for)|step by step|instructions? (for|to|on)|guide (to|for|on)|tutorial|walk me through|(i|we) (want|need|would like|plan|am going|am trying|are going|wanna) to|(im|were|id) (going|trying|planning|looking|like) to|give me (a |an |the |some )?(way|method|script|code|template|guide|tips|steps)|write (me )?(a |an |the |some )?(script|program|code|email|message|letter|tool|exploit)|(best|easiest|quickest|safest|cheapest) way to|a way to|ways to|without getting caught|undetected)\b`)

	// instruction frames mark generated text that walks through an act.
	instructionFrame = re(`\b(heres how|here is how|the trick is|you can (simply|just|easily)|you could (simply|just|easily)|first (you|we) (need to |should |can |will )?|step (i|one|ii|two)\b|then (you|we) (can|should|need to|will))`)

	// imperative start: the sentence opens with the act itself.
	imperativeStart = re(`^(please |now |just )?(forge|hack|steal|launder|phish|crack|bypass|counterfeit|pirate|evade|ddos|scam|falsify|embezzle|poison|hurt)\b`)

	// framing tricks: hypothetical or role-play wrappers around an act.
	framingTrick = re(`\b(hypothetical(ly)?|in a story|for a (story|novel|book|screenplay|movie|game|script)|role ?play(ing)?|pretend(ing)?|imagine|as a character|in character|fictional(ly)?|for research purposes|for educational purposes|asking for a friend)\b`)

	// sensitive objects cancel a rule exception: "steal customers data".
	sensitiveObject = re(`\b(data|information|records|credentials|passwords?|identit(y|ies)|card numbers?|ssns?)\b`)
)

var negations = map[string]bool{
	"not": true, "never": true, "dont": true, "doesnt": true, "didnt": true, "cannot": true,
	"cant": true, "shouldnt": true, "wont": true, "wouldnt": true, "mustnt": true, "no": true,
	"avoid": true, "refuse": true, "without": true,
}

// negated reports whether one of the window words before byte offset at in
// the normalized sentence is a negation.
func negated(s string, at, window int) bool {
	words := splitWords(s[:at])
	for i := len(words) - 1; i >= 0 && i >= len(words)-window; i-- {
		if negations[words[i]] {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	var out []string
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

var alternatives = map[Category]string{
	CategoryForgery:            "If you need a document executed, use a legitimate e-signature service such as DocuSign or Adobe Sign, or ask the person to grant a written power of attorney.",
	CategoryFraud:              "If the goal is to grow revenue or recover money, consider transparent marketing, a documented refund policy, or a licensed collections agency.",
	CategoryUnauthorizedAccess: "If you have lost access to an account or system, use the provider's official recovery process, or engage a licensed penetration tester under a written authorization agreement.",
	CategoryMalware:            "If your goal is security testing, build an isolated lab and use authorized tools under a signed scope of work, or study defensive material such as the OWASP and MITRE ATT&CK guides.",
	CategoryTheft:              "If you need content or data, license it, use the owner's official API, or work from public-domain and openly licensed sources.",
	CategoryFinancialCrime:     "To lower taxes or move funds lawfully, work with a licensed CPA or tax attorney on deductions, credits and compliant structures, and clear trades with your compliance team.",
	CategoryViolence:           "If anyone is at risk, contact local emergency services; for a conflict, consider mediation or a licensed counselor.",
	CategoryDrugs:              "If you or someone close to you is struggling with substance use, the SAMHSA National Helpline (1-800-662-4357) offers free, confidential support. For a business that handles regulated substances, work with a licensed pharmacist and counsel on DEA registration and state licensing.",
	CategoryCircumvention:      "I can still help with the lawful version of your goal. Tell me what you are trying to achieve and the panel will suggest compliant options.",
}
