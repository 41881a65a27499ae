package model

// Resource names shared by the live API paths and the static export files.
const (
	ResourcePipelineOverview     = "pipeline-overview"
	ResourceRiskDistribution     = "risk-distribution"
	ResourceRecentThreats        = "recent-threats"
	ResourceCategoryDistribution = "category-distribution"
	ResourceThreatTimeline       = "threat-timeline"
	ResourceIOCStats             = "ioc-stats"
	ResourceFeedStats            = "rss-feed-stats"
	ResourceThreatFamilies       = "threat-families"
	ResourceTopIndustries        = "top-targeted-industries"
	ResourceActorActivity        = "threat-actor-activity"
	ResourceAttackVectors        = "attack-vectors"
	ResourceTrendingCVEs         = "trending-cves"
)

// Resources lists every list resource in a stable order.
var Resources = []string{
	ResourcePipelineOverview,
	ResourceRiskDistribution,
	ResourceRecentThreats,
	ResourceCategoryDistribution,
	ResourceThreatTimeline,
	ResourceIOCStats,
	ResourceFeedStats,
	ResourceThreatFamilies,
	ResourceTopIndustries,
	ResourceActorActivity,
	ResourceAttackVectors,
	ResourceTrendingCVEs,
}
