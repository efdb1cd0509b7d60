package knowledge

// SampleDocuments is a small built-in legal corpus used when no knowledge
// directory is configured.
func SampleDocuments() []Document {
	return []Document{
		{
			SourceID: "sample/contract-basics",
			Title:    "Contract Law Basics",
			Text: `ARTICLE 1 Formation
A contract requires offer, acceptance, consideration, and mutual assent. Capacity and legality of purpose are also required for enforceability.

ARTICLE 2 Breach and Remedies
A material breach excuses the other party's performance. Remedies include expectation damages, reliance damages, restitution, and in rare cases specific performance. Liquidated damages clauses are enforceable when they are a reasonable estimate of harm, as discussed in Wassenaar v. Panos.`,
		},
		{
			SourceID: "sample/employment-basics",
			Title:    "Employment Law Basics",
			Text: `SECTION 1 At-Will Employment
Most U.S. employment is at-will, meaning either party may terminate the relationship at any time for any lawful reason.

SECTION 2 Anti-Discrimination
Title VII, codified at 42 U.S.C. § 2000e, prohibits discrimination based on race, color, religion, sex, or national origin. Overtime rules under the Fair Labor Standards Act appear at 29 CFR 778 and require pay at one and one-half times the regular rate.`,
		},
		{
			SourceID: "sample/copyright-basics",
			Title:    "Copyright Law Basics",
			Text: `CHAPTER 1 Scope
Copyright protects original works of authorship fixed in a tangible medium. Facts are not protected, as held in Feist v. Rural on March 27, 1991.

CHAPTER 2 Fair Use
Fair use under 17 U.S.C. § 107 weighs purpose and character of the use, nature of the work, amount used, and market effect. Scraping and republishing a competitor's catalog can infringe both copyright and the site's terms of service.`,
		},
		{
			SourceID: "sample/computer-access-basics",
			Title:    "Computer Access and Data Collection",
			Text: `SECTION 1 Unauthorized Access
The Computer Fraud and Abuse Act, 18 U.S.C. § 1030, prohibits accessing a computer without authorization or exceeding authorized access. In Van Buren v. United States the Supreme Court narrowed "exceeds authorized access" to entering off-limits areas of a system.

SECTION 2 Web Scraping
Courts have treated scraping of publicly available pages differently from scraping behind a login, as in hiQ Labs v. LinkedIn. Terms of service, robots.txt directives, rate limits, and official APIs should be reviewed before any automated collection. Privacy rules such as the CCPA apply when personal data is collected.`,
		},
	}
}
