package matcher

// OtherVector is assigned when no attack vector rule matches.
const OtherVector = "Other"

// AttackVectorRules map a category label onto an attack vector. Matching is
// case-sensitive against the category text as stored.
var AttackVectorRules = []Rule{
	{Label: "Phishing/Email", Match: ContainsAny("Phishing", "Email")},
	{Label: "Malware", Match: ContainsAny("Malware", "Ransomware")},
	{Label: "Exploitation", Match: ContainsAny("Vulnerability", "Exploit")},
	{Label: "Credential Theft", Match: ContainsAny("Credential")},
	{Label: "Web Application", Match: ContainsAny("Web", "Application")},
	{Label: "Network", Match: ContainsAny("Network")},
}

// AttackVector classifies a category label.
func AttackVector(category string) string {
	return FirstMatch(AttackVectorRules, category, OtherVector)
}
