/**
 * @description
 * Task evaluator: a pure function of aggregated activity state to gamified
 * progress records. No I/O, no memory of prior evaluations.
 *
 * Each family defines ascending tier thresholds over one metric. Status gating:
 * - completed   iff current >= target
 * - tier 0      in_progress iff current > 0
 * - tier N (>0) stays locked until tier N-1's target is met
 * A higher tier therefore never completes while a lower tier hasn't.
 */

package activity

import (
	"sort"
	"time"

	"github.com/veristat-project/backend/internal/models"
)

// metricFunc extracts one family's current value from the aggregated state.
type metricFunc func(events []models.ActivityEvent, summary models.TradingSummary, account *models.AccountOverview) float64

// tierDef is one threshold within a family.
type tierDef struct {
	id     string
	title  string
	tier   models.Tier
	target float64
}

// familyDef is one task family: a metric plus its ascending tiers.
type familyDef struct {
	name   string
	metric metricFunc
	tiers  []tierDef
}

// taskFamilies is the fixed threshold table. Order within a family is
// ascending; the evaluator relies on it for tier gating.
var taskFamilies = []familyDef{
	{
		name:   "volume",
		metric: totalVolumeMetric,
		tiers: []tierDef{
			{id: "volume_bronze", title: "Trade $1K volume", tier: models.TierBronze, target: 1_000},
			{id: "volume_silver", title: "Trade $10K volume", tier: models.TierSilver, target: 10_000},
			{id: "volume_gold", title: "Trade $100K volume", tier: models.TierGold, target: 100_000},
		},
	},
	{
		name:   "markets",
		metric: marketDiversityMetric,
		tiers: []tierDef{
			{id: "markets_bronze", title: "Trade 2 markets", tier: models.TierBronze, target: 2},
			{id: "markets_silver", title: "Trade 4 markets", tier: models.TierSilver, target: 4},
			{id: "markets_gold", title: "Trade 6 markets", tier: models.TierGold, target: 6},
		},
	},
	{
		name:   "winrate",
		metric: winRateMetric,
		tiers: []tierDef{
			{id: "winrate_bronze", title: "Reach 40% win rate", tier: models.TierBronze, target: 40},
			{id: "winrate_silver", title: "Reach 55% win rate", tier: models.TierSilver, target: 55},
			{id: "winrate_gold", title: "Reach 70% win rate", tier: models.TierGold, target: 70},
		},
	},
	{
		name:   "pnl",
		metric: bestTradeMetric,
		tiers: []tierDef{
			{id: "pnl_bronze", title: "Bank a $10 trade", tier: models.TierBronze, target: 10},
			{id: "pnl_silver", title: "Bank a $100 trade", tier: models.TierSilver, target: 100},
			{id: "pnl_gold", title: "Bank a $1K trade", tier: models.TierGold, target: 1_000},
		},
	},
	{
		name:   "streak",
		metric: activeStreakMetric,
		tiers: []tierDef{
			{id: "streak_bronze", title: "Trade 2 days in a row", tier: models.TierBronze, target: 2},
			{id: "streak_silver", title: "Trade 5 days in a row", tier: models.TierSilver, target: 5},
			{id: "streak_gold", title: "Trade 14 days in a row", tier: models.TierGold, target: 14},
		},
	},
	{
		name:   "fees",
		metric: totalFeesMetric,
		tiers: []tierDef{
			{id: "fees_bronze", title: "Pay $10 in fees", tier: models.TierBronze, target: 10},
			{id: "fees_silver", title: "Pay $100 in fees", tier: models.TierSilver, target: 100},
		},
	},
	{
		name:   "funded",
		metric: fundedMetric,
		tiers: []tierDef{
			{id: "funded", title: "Fund your account", tier: models.TierNone, target: 1},
		},
	},
}

// Evaluate computes all tasks and their derived badges from the latest
// aggregated state. Badge earned flags here reflect only this evaluation; the
// BadgeLedger makes them monotonic across runs.
func Evaluate(events []models.ActivityEvent, summary models.TradingSummary, account *models.AccountOverview) ([]models.Task, []models.Badge) {
	var tasks []models.Task
	var badges []models.Badge

	for _, family := range taskFamilies {
		current := family.metric(events, summary, account)

		lowerMet := true // tier 0 has no predecessor
		for i, tier := range family.tiers {
			task := models.Task{
				ID:      tier.id,
				Family:  family.name,
				Title:   tier.title,
				Tier:    tier.tier,
				Target:  tier.target,
				Current: current,
			}

			task.ProgressPct = clampPct(current / tier.target * 100)

			switch {
			case current >= tier.target:
				task.Status = models.TaskCompleted
			case i == 0 && current > 0:
				task.Status = models.TaskInProgress
			case i > 0 && lowerMet:
				task.Status = models.TaskInProgress
			default:
				task.Status = models.TaskLocked
			}

			lowerMet = current >= tier.target
			tasks = append(tasks, task)

			badges = append(badges, models.Badge{
				ID:     "badge_" + tier.id,
				TaskID: tier.id,
				Title:  tier.title,
				Tier:   tier.tier,
				Earned: task.Status == models.TaskCompleted,
			})
		}
	}

	return tasks, badges
}

func clampPct(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func totalVolumeMetric(events []models.ActivityEvent, _ models.TradingSummary, _ *models.AccountOverview) float64 {
	var total float64
	for _, event := range events {
		total += event.NotionalUSD
	}
	return total
}

func marketDiversityMetric(events []models.ActivityEvent, _ models.TradingSummary, _ *models.AccountOverview) float64 {
	distinct := make(map[string]struct{})
	for _, event := range events {
		distinct[event.Instrument] = struct{}{}
	}
	return float64(len(distinct))
}

func winRateMetric(_ []models.ActivityEvent, summary models.TradingSummary, _ *models.AccountOverview) float64 {
	return float64(summary.WinRatePct)
}

func bestTradeMetric(_ []models.ActivityEvent, summary models.TradingSummary, _ *models.AccountOverview) float64 {
	if summary.BestTradePnl < 0 {
		return 0
	}
	return summary.BestTradePnl
}

func totalFeesMetric(_ []models.ActivityEvent, summary models.TradingSummary, _ *models.AccountOverview) float64 {
	return summary.TotalFees
}

func fundedMetric(_ []models.ActivityEvent, _ models.TradingSummary, account *models.AccountOverview) float64 {
	if account != nil && account.AccountValue > 0 {
		return 1
	}
	return 0
}

// activeStreakMetric is the longest run of distinct UTC calendar dates that are
// each exactly one day apart. Equal dates count once; a gap over one day resets
// the run.
func activeStreakMetric(events []models.ActivityEvent, _ models.TradingSummary, _ *models.AccountOverview) float64 {
	if len(events) == 0 {
		return 0
	}

	seen := make(map[int64]struct{})
	var days []int64
	for _, event := range events {
		day := event.Timestamp.UTC().Truncate(24 * time.Hour).Unix()
		if _, ok := seen[day]; !ok {
			seen[day] = struct{}{}
			days = append(days, day)
		}
	}

	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	const daySecs = 24 * 60 * 60
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i]-days[i-1] == daySecs {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 1
		}
	}
	return float64(best)
}
