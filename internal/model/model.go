package model

import "strings"

type RiskLevel string

const (
	RiskHigh          RiskLevel = "HIGH"
	RiskMedium        RiskLevel = "MEDIUM"
	RiskLow           RiskLevel = "LOW"
	RiskInformational RiskLevel = "INFORMATIONAL"
)

// Stored by the upstream analyzer for articles that are not security news.
const (
	RiskNotRelevant     = "NOT_RELEVANT"
	CategoryNotRelevant = "Not Cybersecurity Related"
	CategoryPending     = "Pending Analysis"
	CategoryNone        = "Uncategorized"
)

// NormalizeRisk maps a stored risk value onto the four known levels.
// Empty and unknown values become INFORMATIONAL.
func NormalizeRisk(v string) RiskLevel {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(v))) {
	case RiskHigh:
		return RiskHigh
	case RiskMedium:
		return RiskMedium
	case RiskLow:
		return RiskLow
	default:
		return RiskInformational
	}
}

type ThreatRecord struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Content       string `json:"content,omitempty"`
	Category      string `json:"category"`
	RiskLevel     string `json:"risk_level"`
	PublishedDate string `json:"published_date"`
	SourceURL     string `json:"source_url"`
	IOCCount      int    `json:"ioc_count"`
	KQLCount      int    `json:"kql_count"`
}

type IOC struct {
	Type    string `json:"ioc_type"`
	Value   string `json:"ioc_value"`
	Context string `json:"context"`
}

type KQLQuery struct {
	Name     string `json:"query_name"`
	Query    string `json:"kql_query"`
	Type     string `json:"query_type"`
	Platform string `json:"platform"`
}

type ArticleDetail struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Content         string     `json:"content"`
	Category        string     `json:"category"`
	RiskLevel       string     `json:"risk_level"`
	PublishedDate   string     `json:"published_date"`
	SourceURL       string     `json:"source_url"`
	Recommendations string     `json:"recommendations"`
	IOCs            []IOC      `json:"iocs"`
	KQLQueries      []KQLQuery `json:"kql_queries"`
}

type Recommendation struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type TimelinePoint struct {
	Date          string `json:"date"`
	High          int    `json:"HIGH"`
	Medium        int    `json:"MEDIUM"`
	Low           int    `json:"LOW"`
	Informational int    `json:"INFORMATIONAL"`
}

// Add increments the counter for the given level.
func (p *TimelinePoint) Add(level RiskLevel) {
	switch level {
	case RiskHigh:
		p.High++
	case RiskMedium:
		p.Medium++
	case RiskLow:
		p.Low++
	default:
		p.Informational++
	}
}

type PipelineOverview struct {
	LastRun           string `json:"last_run"`
	ArticlesProcessed int    `json:"articles_processed"`
	FilteredItems     int    `json:"filtered_items"`
	FailedRuns        int    `json:"failed_runs"`
	CriticalThreats   int    `json:"critical_threats"`
	TotalIOCs         int    `json:"total_iocs"`
}

type IOCStats struct {
	Domains int `json:"domains"`
	IPs     int `json:"ips"`
	Hashes  int `json:"hashes"`
	CVEs    int `json:"cves"`
	URLs    int `json:"urls"`
	Emails  int `json:"emails"`
}

type FeedStat struct {
	Name        string `json:"name"`
	Domain      string `json:"domain"`
	Articles    int    `json:"articles"`
	Parsed      int    `json:"parsed"`
	LastSuccess string `json:"last_success"`
}

type ThreatFamily struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type ActorActivity struct {
	Actor        string  `json:"actor"`
	Country      string  `json:"country"`
	Type         string  `json:"type"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	ArticleTitle string  `json:"article_title"`
	Date         string  `json:"date"`
	ArticleID    int64   `json:"article_id"`
}

type TrendingCVE struct {
	CVE           string `json:"cve"`
	Count         int    `json:"count"`
	Severity      string `json:"severity"`
	LatestArticle string `json:"latest_article"`
	Date          string `json:"date"`
	Context       string `json:"context"`
}

type Manifest struct {
	GeneratedAt   string   `json:"generated_at"`
	TotalArticles int      `json:"total_articles"`
	Endpoints     []string `json:"endpoints"`
	ArticleCount  int      `json:"article_count"`
}

// CVEMention is one CVE indicator joined with the article it came from.
type CVEMention struct {
	CVE           string `json:"cve"`
	Context       string `json:"context"`
	ArticleID     int64  `json:"article_id"`
	Title         string `json:"title"`
	RiskLevel     string `json:"risk_level"`
	PublishedDate string `json:"published_date"`
}
