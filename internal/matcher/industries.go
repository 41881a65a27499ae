package matcher

// IndustryRules expect a lower-cased haystack. A record may match several.
var IndustryRules = []Rule{
	{Label: "Finance", Match: ContainsAny("bank", "financial", "finance", "payment", "credit", "trading", "fintech", "cryptocurrency", "crypto")},
	{Label: "Healthcare", Match: ContainsAny("health", "hospital", "medical", "patient", "healthcare", "pharmaceutical", "clinic")},
	{Label: "Government", Match: ContainsAny("government", "federal", "state", "military", "defense", "agency", "public sector")},
	{Label: "Manufacturing", Match: ContainsAny("manufacturing", "industrial", "factory", "production", "automotive", "supply chain")},
	{Label: "Technology", Match: ContainsAny("tech", "software", "cloud", "saas", "it company", "technology firm")},
	{Label: "Energy", Match: ContainsAny("energy", "oil", "gas", "utility", "power", "electric", "renewable")},
	{Label: "Retail", Match: ContainsAny("retail", "ecommerce", "e-commerce", "shopping", "store", "consumer")},
	{Label: "Education", Match: ContainsAny("education", "university", "school", "college", "academic", "student")},
	{Label: "Telecommunications", Match: ContainsAny("telecom", "telecommunications", "mobile", "network provider", "isp")},
	{Label: "Transportation", Match: ContainsAny("transportation", "airline", "shipping", "logistics", "aviation")},
}

// Industries returns every industry whose keywords occur in the joined,
// lower-cased fields.
func Industries(category, title, summary, content string) []string {
	return AllMatches(IndustryRules, Haystack(category, title, summary, content))
}
