package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"threatdash/internal/filters"
	"threatdash/internal/model"
)

// SummaryRunes bounds the summary carried by list records.
const SummaryRunes = 200

// Setting keys written by ingest and export runs.
const (
	SettingLastRun    = "last_run"
	SettingFailedRuns = "failed_runs"
)

var ErrNotFound = errors.New("not found")

// relevant excludes rows the analyzer marked as unrelated to security.
const relevant = `COALESCE(a.category, '') <> 'Not Cybersecurity Related' AND COALESCE(a.threat_risk, '') <> 'NOT_RELEVANT'`

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListThreats returns every relevant record, newest first, with IOC and KQL
// counts. This projection is shared by the live API and the static export.
func (s *Store) ListThreats(ctx context.Context) ([]model.ThreatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.title, COALESCE(a.summary, ''), COALESCE(a.content, ''),
			COALESCE(a.category, ''), COALESCE(a.threat_risk, ''), a.published_date, a.url,
			(SELECT COUNT(*) FROM iocs i WHERE i.article_id = a.id),
			(SELECT COUNT(*) FROM kql_queries k WHERE k.article_id = a.id)
		FROM articles a
		WHERE `+relevant+`
		ORDER BY a.published_date DESC, a.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ThreatRecord{}
	for rows.Next() {
		var r model.ThreatRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Summary, &r.Content, &r.Category, &r.RiskLevel,
			&r.PublishedDate, &r.SourceURL, &r.IOCCount, &r.KQLCount); err != nil {
			return nil, err
		}
		r.Summary = truncateRunes(r.Summary, SummaryRunes)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Overview returns the range-independent pipeline counters.
func (s *Store) Overview(ctx context.Context) (model.PipelineOverview, error) {
	var out model.PipelineOverview
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&out.ArticlesProcessed); err != nil {
		return model.PipelineOverview{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM iocs`).Scan(&out.TotalIOCs); err != nil {
		return model.PipelineOverview{}, err
	}
	lastRun, err := s.GetSetting(ctx, SettingLastRun, "")
	if err != nil {
		return model.PipelineOverview{}, err
	}
	out.LastRun = lastRun
	failed, err := s.GetSettingInt(ctx, SettingFailedRuns, 0)
	if err != nil {
		return model.PipelineOverview{}, err
	}
	out.FailedRuns = failed
	return out, nil
}

// RiskDistribution counts every article by its stored risk. Rows without a
// risk are left out.
func (s *Store) RiskDistribution(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT threat_risk, COUNT(*) FROM articles
		WHERE COALESCE(threat_risk, '') <> ''
		GROUP BY threat_risk
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var risk string
		var n int
		if err := rows.Scan(&risk, &n); err != nil {
			return nil, err
		}
		out[risk] = n
	}
	return out, rows.Err()
}

func (s *Store) IOCStats(ctx context.Context) (model.IOCStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ioc_type, COUNT(*) FROM iocs GROUP BY ioc_type`)
	if err != nil {
		return model.IOCStats{}, err
	}
	defer rows.Close()
	var out model.IOCStats
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return model.IOCStats{}, err
		}
		if bucket := iocBucket(&out, typ); bucket != nil {
			*bucket += n
		}
	}
	return out, rows.Err()
}

// iocBucket picks the counter for an extractor type name such as "ips",
// "sha256" or "email_addresses". Unknown types return nil.
func iocBucket(st *model.IOCStats, typ string) *int {
	typ = strings.ToLower(typ)
	switch {
	case strings.Contains(typ, "domain"):
		return &st.Domains
	case strings.Contains(typ, "ip"):
		return &st.IPs
	case strings.Contains(typ, "hash"), strings.Contains(typ, "md5"), strings.Contains(typ, "sha"):
		return &st.Hashes
	case strings.Contains(typ, "cve"):
		return &st.CVEs
	case strings.Contains(typ, "url"):
		return &st.URLs
	case strings.Contains(typ, "email"):
		return &st.Emails
	default:
		return nil
	}
}

// MaxFeeds bounds the feed statistics list.
const MaxFeeds = 10

var feedNames = []struct{ key, name string }{
	{"bleepingcomputer", "BleepingComputer"},
	{"thehackernews", "The Hacker News"},
	{"darkreading", "Dark Reading"},
	{"threatpost", "Threatpost"},
	{"krebsonsecurity", "Krebs on Security"},
	{"securityweek", "SecurityWeek"},
	{"cyberscoop", "CyberScoop"},
	{"zdnet", "ZDNet"},
	{"arstechnica", "Ars Technica"},
	{"theregister", "The Register"},
}

// FeedStats groups articles by source domain. LastSuccess is the newest
// published_date seen for the domain.
func (s *Store) FeedStats(ctx context.Context) ([]model.FeedStat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, published_date FROM articles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byDomain := make(map[string]*model.FeedStat)
	latest := make(map[string]time.Time)
	var order []string
	for rows.Next() {
		var rawURL, published string
		if err := rows.Scan(&rawURL, &published); err != nil {
			return nil, err
		}
		domain := SourceDomain(rawURL)
		st, ok := byDomain[domain]
		if !ok {
			st = &model.FeedStat{Name: FeedName(domain), Domain: domain}
			byDomain[domain] = st
			order = append(order, domain)
		}
		st.Articles++
		st.Parsed++
		if t, ok := filters.ParseTimestamp(published); ok && t.After(latest[domain]) {
			latest[domain] = t
			st.LastSuccess = published
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.FeedStat, 0, len(order))
	for _, d := range order {
		out = append(out, *byDomain[d])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Articles > out[j].Articles })
	if len(out) > MaxFeeds {
		out = out[:MaxFeeds]
	}
	return out, nil
}

// SourceDomain returns the host of rawURL without a leading "www.".
func SourceDomain(rawURL string) string {
	host := ""
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil && u.Host != "" {
		host = u.Hostname()
	} else {
		host, _, _ = strings.Cut(strings.TrimSpace(rawURL), "/")
	}
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// FeedName maps a source domain onto a display name.
func FeedName(domain string) string {
	if domain == "" {
		return "Unknown"
	}
	lower := strings.ToLower(domain)
	for _, fn := range feedNames {
		if strings.Contains(lower, fn.key) {
			return fn.name
		}
	}
	first, _, _ := strings.Cut(domain, ".")
	if first == "" {
		return "Unknown"
	}
	r, size := utf8.DecodeRuneInString(first)
	return strings.ToUpper(string(r)) + strings.ToLower(first[size:])
}

// CVEMentions lists CVE indicators of relevant articles, newest first.
func (s *Store) CVEMentions(ctx context.Context) ([]model.CVEMention, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.ioc_value, COALESCE(i.context, ''), a.id, a.title,
			COALESCE(a.threat_risk, ''), a.published_date
		FROM iocs i
		JOIN articles a ON i.article_id = a.id
		WHERE LOWER(i.ioc_type) IN ('cve', 'cves') AND `+relevant+`
		ORDER BY a.published_date DESC, a.id DESC, i.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CVEMention
	for rows.Next() {
		var m model.CVEMention
		if err := rows.Scan(&m.CVE, &m.Context, &m.ArticleID, &m.Title, &m.RiskLevel, &m.PublishedDate); err != nil {
			return nil, err
		}
		m.CVE = strings.ToUpper(strings.TrimSpace(m.CVE))
		out = append(out, m)
	}
	return out, rows.Err()
}

// Article loads one article with its IOCs and KQL queries.
func (s *Store) Article(ctx context.Context, id int64) (model.ArticleDetail, error) {
	var a model.ArticleDetail
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, COALESCE(summary, ''), COALESCE(content, ''), COALESCE(category, ''),
			COALESCE(threat_risk, ''), published_date, url, COALESCE(recommendations, '')
		FROM articles WHERE id=?
	`, id).Scan(&a.ID, &a.Title, &a.Summary, &a.Content, &a.Category, &a.RiskLevel,
		&a.PublishedDate, &a.SourceURL, &a.Recommendations)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ArticleDetail{}, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.ArticleDetail{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT ioc_type, ioc_value, COALESCE(context, '') FROM iocs WHERE article_id=? ORDER BY id`, id)
	if err != nil {
		return model.ArticleDetail{}, err
	}
	defer rows.Close()
	a.IOCs = []model.IOC{}
	for rows.Next() {
		var ioc model.IOC
		if err := rows.Scan(&ioc.Type, &ioc.Value, &ioc.Context); err != nil {
			return model.ArticleDetail{}, err
		}
		a.IOCs = append(a.IOCs, ioc)
	}
	if err := rows.Err(); err != nil {
		return model.ArticleDetail{}, err
	}
	rows.Close()

	qrows, err := s.db.QueryContext(ctx, `SELECT query_name, kql_query, query_type, COALESCE(platform, '') FROM kql_queries WHERE article_id=? ORDER BY id`, id)
	if err != nil {
		return model.ArticleDetail{}, err
	}
	defer qrows.Close()
	a.KQLQueries = []model.KQLQuery{}
	for qrows.Next() {
		var q model.KQLQuery
		if err := qrows.Scan(&q.Name, &q.Query, &q.Type, &q.Platform); err != nil {
			return model.ArticleDetail{}, err
		}
		a.KQLQueries = append(a.KQLQueries, q)
	}
	return a, qrows.Err()
}

type ArticleInput struct {
	Title           string
	URL             string
	PublishedDate   string
	Content         string
	Summary         string
	Risk            string
	Category        string
	Recommendations string
	SourceFeed      string
	IngestedAt      time.Time
}

// InsertArticle stores a new article. An article whose URL is already known
// is left untouched and reported with inserted=false.
func (s *Store) InsertArticle(ctx context.Context, in ArticleInput) (int64, bool, error) {
	if strings.TrimSpace(in.URL) == "" || strings.TrimSpace(in.Title) == "" {
		return 0, false, errors.New("article needs a title and url")
	}
	if in.IngestedAt.IsZero() {
		in.IngestedAt = time.Now()
	}
	if in.Recommendations == "" {
		in.Recommendations = "[]"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO articles(
			title, url, published_date, content, summary, threat_risk, category,
			recommendations, source_feed, ingested_at
		) VALUES(?,?,?,?,?,?,?,?,?,?)
	`, strings.TrimSpace(in.Title), strings.TrimSpace(in.URL), in.PublishedDate, in.Content, in.Summary,
		in.Risk, in.Category, in.Recommendations, in.SourceFeed, in.IngestedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		var id int64
		if err := s.db.QueryRowContext(ctx, `SELECT id FROM articles WHERE url=?`, strings.TrimSpace(in.URL)).Scan(&id); err != nil {
			return 0, false, err
		}
		return id, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, err
}

// AddIOCs stores indicators for an article, skipping duplicates. It returns
// the number of new rows.
func (s *Store) AddIOCs(ctx context.Context, articleID int64, iocs []model.IOC) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	stored := 0
	for _, ioc := range iocs {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO iocs(article_id, ioc_type, ioc_value, context) VALUES(?,?,?,?)`,
			articleID, ioc.Type, ioc.Value, ioc.Context)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stored++
		}
	}
	return stored, tx.Commit()
}

func (s *Store) AddKQLQueries(ctx context.Context, articleID int64, queries []model.KQLQuery) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for _, q := range queries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kql_queries(article_id, query_name, query_type, platform, kql_query) VALUES(?,?,?,?,?)`,
			articleID, q.Name, q.Type, q.Platform, q.Query); err != nil {
			return 0, err
		}
	}
	return len(queries), tx.Commit()
}

// KnownURLs returns the set of stored article URLs.
func (s *Store) KnownURLs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM articles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out[u] = struct{}{}
	}
	return out, rows.Err()
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_settings(key, value, updated_at) VALUES(?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key, defaultValue string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultValue, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) GetSettingInt(ctx context.Context, key string, defaultValue int) (int, error) {
	value, err := s.GetSetting(ctx, key, "")
	if err != nil {
		return 0, err
	}
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, nil
	}
	return n, nil
}

// IncrementSetting adds delta to an integer setting and returns the new value.
func (s *Store) IncrementSetting(ctx context.Context, key string, delta int) (int, error) {
	cur, err := s.GetSettingInt(ctx, key, 0)
	if err != nil {
		return 0, err
	}
	cur += delta
	return cur, s.SetSetting(ctx, key, strconv.Itoa(cur))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
