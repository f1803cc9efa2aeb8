package services

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"battle-event-system/models"
)

// Simulation tuning constants.
const (
	minEvents = 1
	maxEvents = 3

	// Event kind split: 30% apocalypse, 30% revival, 40% boost.
	apocalypseCut = 0.30
	revivalCut    = 0.60

	// Apocalypse wipes 30-50% of the alive set but never drops it below two.
	apocalypseMinFrac  = 0.30
	apocalypseFracSpan = 0.20
	minAliveFloor      = 2

	maxRevivalsPerEvent = 3
	boostBonus          = 30.0
	revivalPenalty      = -20.0

	narrativeSlots = 8
)

// FighterSnapshot is the read-only attribute view of one participant, fetched
// once at simulation start.
type FighterSnapshot struct {
	UserID  string
	Level   int
	Balance float64
}

// RankedFighter is one row of the final ranking.
type RankedFighter struct {
	UserID     string
	Score      float64
	Eliminated bool
	Revived    bool
	Position   int // 1-based
}

// SimulationResult is the full outcome of one battle simulation: the ordered
// event sequence for narration plus the final ranking.
type SimulationResult struct {
	Events  []models.CombatEvent
	Ranking []RankedFighter
}

// CombatSimulator turns a roster snapshot into an elimination sequence and a
// final ranking. It is a pure function of the snapshot and the injected
// random source: no clock reads, no I/O, no pacing. Narration delays belong
// to the presentation layer iterating the returned events.
type CombatSimulator struct {
	rng *rand.Rand
}

func NewCombatSimulator(rng *rand.Rand) *CombatSimulator {
	return &CombatSimulator{rng: rng}
}

// Run simulates the battle. The timestamp stamps emitted events only.
func (s *CombatSimulator) Run(fighters []FighterSnapshot, at time.Time) SimulationResult {
	n := len(fighters)
	eliminated := make([]bool, n)
	revived := make([]bool, n)
	boosts := make([]float64, n)

	var events []models.CombatEvent
	eventCount := s.rng.Intn(maxEvents-minEvents+1) + minEvents

	for i := 0; i < eventCount; i++ {
		var ev models.CombatEvent
		roll := s.rng.Float64()
		switch {
		case roll < apocalypseCut:
			ev = s.apocalypse(fighters, eliminated, at)
		case roll < revivalCut:
			ev = s.revival(fighters, eliminated, revived, at)
		default:
			ev = s.boost(fighters, eliminated, boosts, at)
		}
		events = append(events, ev)
	}

	ranking := s.rank(fighters, eliminated, revived, boosts)
	return SimulationResult{Events: events, Ranking: ranking}
}

// apocalypse eliminates a random 30–50% of the alive set, clamped so at least
// two fighters survive. With fewer than three alive it degrades to a
// flavor-only skirmish.
func (s *CombatSimulator) apocalypse(fighters []FighterSnapshot, eliminated []bool, at time.Time) models.CombatEvent {
	alive := aliveIndexes(eliminated)
	if len(alive) < minAliveFloor+1 {
		return s.skirmish(fighters, eliminated, at)
	}

	frac := apocalypseMinFrac + s.rng.Float64()*apocalypseFracSpan
	count := int(float64(len(alive)) * frac)
	if count < 1 {
		count = 1
	}
	if count > len(alive)-minAliveFloor {
		count = len(alive) - minAliveFloor
	}

	s.rng.Shuffle(len(alive), func(i, j int) { alive[i], alive[j] = alive[j], alive[i] })
	affected := make([]string, 0, count)
	for _, idx := range alive[:count] {
		eliminated[idx] = true
		affected = append(affected, fighters[idx].UserID)
	}

	return models.CombatEvent{
		Kind:          models.CombatEventApocalypse,
		AffectedUsers: affected,
		NarrativeSlot: s.rng.Intn(narrativeSlots),
		Timestamp:     at,
	}
}

// revival brings 1–3 eliminated fighters back. A fighter is revived at most
// once per battle and carries the score penalty permanently.
func (s *CombatSimulator) revival(fighters []FighterSnapshot, eliminated, revived []bool, at time.Time) models.CombatEvent {
	var candidates []int
	for i := range fighters {
		if eliminated[i] && !revived[i] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return s.skirmish(fighters, eliminated, at)
	}

	count := s.rng.Intn(maxRevivalsPerEvent) + 1
	if count > len(candidates) {
		count = len(candidates)
	}

	s.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	affected := make([]string, 0, count)
	for _, idx := range candidates[:count] {
		eliminated[idx] = false
		revived[idx] = true
		affected = append(affected, fighters[idx].UserID)
	}

	return models.CombatEvent{
		Kind:          models.CombatEventRevival,
		AffectedUsers: affected,
		NarrativeSlot: s.rng.Intn(narrativeSlots),
		Timestamp:     at,
	}
}

// boost grants one alive fighter a flat score bonus.
func (s *CombatSimulator) boost(fighters []FighterSnapshot, eliminated []bool, boosts []float64, at time.Time) models.CombatEvent {
	alive := aliveIndexes(eliminated)
	if len(alive) == 0 {
		return s.skirmish(fighters, eliminated, at)
	}

	idx := alive[s.rng.Intn(len(alive))]
	boosts[idx] += boostBonus

	return models.CombatEvent{
		Kind:          models.CombatEventBoost,
		AffectedUsers: []string{fighters[idx].UserID},
		NarrativeSlot: s.rng.Intn(narrativeSlots),
		Timestamp:     at,
	}
}

// skirmish is a flavor-only combat beat used when an event kind cannot fire
// mechanically. It touches up to two fighters and changes nothing.
func (s *CombatSimulator) skirmish(fighters []FighterSnapshot, eliminated []bool, at time.Time) models.CombatEvent {
	alive := aliveIndexes(eliminated)
	s.rng.Shuffle(len(alive), func(i, j int) { alive[i], alive[j] = alive[j], alive[i] })
	if len(alive) > 2 {
		alive = alive[:2]
	}
	affected := make([]string, 0, len(alive))
	for _, idx := range alive {
		affected = append(affected, fighters[idx].UserID)
	}
	return models.CombatEvent{
		Kind:          models.CombatEventCombat,
		AffectedUsers: affected,
		NarrativeSlot: s.rng.Intn(narrativeSlots),
		Timestamp:     at,
	}
}

// rank computes final scores and orders the field: alive fighters first by
// descending score, then the eliminated in stable join order. If every
// fighter somehow ended up eliminated, the highest scorer is promoted to sole
// survivor: the ranking always has exactly one rank 1.
func (s *CombatSimulator) rank(fighters []FighterSnapshot, eliminated, revived []bool, boosts []float64) []RankedFighter {
	n := len(fighters)
	rows := make([]RankedFighter, n)
	for i, f := range fighters {
		penalty := 0.0
		if revived[i] {
			penalty = revivalPenalty
		}
		rows[i] = RankedFighter{
			UserID:     f.UserID,
			Eliminated: eliminated[i],
			Revived:    revived[i],
			Score: float64(f.Level)*10 +
				math.Log(math.Max(1, f.Balance))*5 +
				s.rng.Float64()*50 +
				penalty +
				boosts[i],
		}
	}

	var alive, fallen []RankedFighter
	for _, row := range rows {
		if row.Eliminated {
			fallen = append(fallen, row)
		} else {
			alive = append(alive, row)
		}
	}

	if len(alive) == 0 {
		best := 0
		for i := range fallen {
			if fallen[i].Score > fallen[best].Score {
				best = i
			}
		}
		survivor := fallen[best]
		survivor.Eliminated = false
		fallen = append(fallen[:best], fallen[best+1:]...)
		alive = []RankedFighter{survivor}
	}

	sort.SliceStable(alive, func(i, j int) bool { return alive[i].Score > alive[j].Score })

	ordered := append(alive, fallen...)
	for i := range ordered {
		ordered[i].Position = i + 1
	}
	return ordered
}

func aliveIndexes(eliminated []bool) []int {
	var alive []int
	for i, out := range eliminated {
		if !out {
			alive = append(alive, i)
		}
	}
	return alive
}
