package digest

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"LitMonitor/internal/domain"
)

var tierOrder = []domain.Tier{domain.TierHigh, domain.TierModerate, domain.TierLow}

// Compose arranges ranked papers into a digest with a fully deterministic
// layout: tiers in priority order, papers within each tier sorted by score
// descending, then publication date descending, then paper ID ascending.
// Tiers with no papers are omitted.
func Compose(papers []domain.RankedPaper, generatedAt time.Time) domain.Digest {
	buckets := make(map[domain.Tier][]domain.RankedPaper, len(tierOrder))
	for _, p := range papers {
		buckets[p.Result.Tier] = append(buckets[p.Result.Tier], p)
	}

	d := domain.Digest{
		ID:          uuid.NewString(),
		GeneratedAt: generatedAt,
	}
	for rank, tier := range tierOrder {
		group := buckets[tier]
		if len(group) == 0 {
			continue
		}
		sortWithinTier(group)
		d.Tiers = append(d.Tiers, domain.DigestTier{
			Tier:         tier,
			PriorityRank: rank + 1,
			Papers:       group,
		})
	}
	return d
}

func sortWithinTier(papers []domain.RankedPaper) {
	sort.Slice(papers, func(i, j int) bool {
		a, b := papers[i], papers[j]
		if a.Result.Score != b.Result.Score {
			return a.Result.Score > b.Result.Score
		}
		if !a.Paper.PubDate.Equal(b.Paper.PubDate) {
			return a.Paper.PubDate.After(b.Paper.PubDate)
		}
		return a.Paper.ID < b.Paper.ID
	})
}
