package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/rules"
	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

// RuleBased is the deterministic scorer: a pure function of the floor plan
// and the rule-catalog snapshot. Same input, same output — no randomness.
type RuleBased struct{}

func NewRuleBased() *RuleBased { return &RuleBased{} }

const baseDirectionScore = 75.0

// favorable compass placements per room type
var favorable = map[vastu.RoomType][]vastu.Direction{
	vastu.Kitchen:    {vastu.Southeast, vastu.Northwest},
	vastu.PoojaRoom:  {vastu.Northeast},
	vastu.Bedroom:    {vastu.Southwest, vastu.South},
	vastu.Bathroom:   {vastu.Northwest, vastu.West},
	vastu.LivingRoom: {vastu.North, vastu.East, vastu.Northeast},
	vastu.DiningRoom: {vastu.West, vastu.East},
	vastu.Study:      {vastu.East, vastu.North},
	vastu.Storage:    {vastu.Southwest, vastu.West},
	vastu.Entrance:   {vastu.North, vastu.East, vastu.Northeast},
}

// placements that work against the room's function
var unfavorable = map[vastu.RoomType][]vastu.Direction{
	vastu.Kitchen:   {vastu.Northeast, vastu.North},
	vastu.PoojaRoom: {vastu.South, vastu.Southwest},
	vastu.Bedroom:   {vastu.Northeast, vastu.Southeast},
	vastu.Bathroom:  {vastu.Northeast},
	vastu.Entrance:  {vastu.Southwest},
}

func (RuleBased) Score(ctx context.Context, plan domain.FloorPlan, catalog []*rules.Rule) (*domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirScores := make(map[vastu.Direction]float64, len(vastu.Directions))
	for _, d := range vastu.Directions {
		dirScores[d] = baseDirectionScore
	}

	// entrance orientation of the whole property
	switch plan.Orientation {
	case vastu.North, vastu.East, vastu.Northeast:
		dirScores[plan.Orientation] += 10
	case vastu.Southwest:
		dirScores[vastu.Southwest] -= 10
	}

	// room placement against the favorable/unfavorable tables
	roomScores := make([]domain.RoomScore, 0, len(plan.Rooms))
	for _, room := range plan.Rooms {
		rs := domain.RoomScore{Room: room.Name, Score: 70}
		dir := room.Direction
		if dir == "" {
			rs.Recommendations = append(rs.Recommendations,
				fmt.Sprintf("specify a compass direction for %s to refine its score", room.Name))
			roomScores = append(roomScores, rs)
			continue
		}
		switch {
		case contains(favorable[room.Type], dir):
			rs.Score = 90
			dirScores[dir] = clamp(dirScores[dir] + 8)
		case contains(unfavorable[room.Type], dir):
			rs.Score = 45
			rs.Issues = append(rs.Issues,
				fmt.Sprintf("%s placed in %s works against its element", room.Name, dir))
			dirScores[dir] = clamp(dirScores[dir] - 15)
		default:
			rs.Score = 70
		}
		for _, rule := range catalog {
			if !rule.Active || rule.RoomType != room.Type {
				continue
			}
			if rule.Direction != "" && rule.Direction != dir {
				continue
			}
			rs.Recommendations = append(rs.Recommendations, rule.Remedies...)
			if rs.Score < 60 {
				rs.Issues = append(rs.Issues, rule.Consequences...)
			}
		}
		roomScores = append(roomScores, rs)
	}

	directions := make(map[vastu.Direction]domain.DirectionScore, len(vastu.Directions))
	for _, d := range vastu.Directions {
		score := clamp(dirScores[d])
		ds := domain.DirectionScore{Score: score}
		if score < 60 {
			ds.Issues = append(ds.Issues, fmt.Sprintf("the %s zone is weakened by current placements", d))
		}
		for _, rule := range catalog {
			if rule.Direction != d || !rule.Active {
				continue
			}
			if score < 70 {
				ds.Recommendations = append(ds.Recommendations, rule.Remedies...)
			}
		}
		directions[d] = ds
	}

	elements := elementScores(directions, catalog)
	remedies := buildRemedies(directions, roomScores, catalog)

	overall := overallScore(directions, elements, roomScores)
	res := &domain.Result{
		OverallScore: overall,
		Directions:   directions,
		Elements:     elements,
		Rooms:        roomScores,
		Remedies:     remedies,
		Summary:      summary(overall, roomScores),
	}
	return res, res.Validate()
}

// elementScores averages the direction scores governed by each element.
func elementScores(directions map[vastu.Direction]domain.DirectionScore, catalog []*rules.Rule) map[vastu.Element]domain.ElementScore {
	sums := make(map[vastu.Element]float64)
	counts := make(map[vastu.Element]int)
	for d, ds := range directions {
		e := vastu.ElementOf(d)
		sums[e] += ds.Score
		counts[e]++
	}
	out := make(map[vastu.Element]domain.ElementScore, len(vastu.Elements))
	for _, e := range vastu.Elements {
		score := baseDirectionScore
		if counts[e] > 0 {
			score = sums[e] / float64(counts[e])
		}
		score = math.Round(score*10) / 10
		es := domain.ElementScore{Score: score, Balance: balanceOf(score)}
		if es.Balance != domain.Balanced {
			for _, rule := range catalog {
				if rule.Element == e && rule.Active {
					es.Recommendations = append(es.Recommendations, rule.Remedies...)
				}
			}
		}
		out[e] = es
	}
	return out
}

func balanceOf(score float64) domain.Balance {
	switch {
	case score < 60:
		return domain.Weak
	case score > 88:
		return domain.Excessive
	default:
		return domain.Balanced
	}
}

// buildRemedies turns triggered catalog rules into the remedy list, ordered
// by priority desc then description for stable output.
func buildRemedies(directions map[vastu.Direction]domain.DirectionScore, rooms []domain.RoomScore, catalog []*rules.Rule) []domain.Remedy {
	weak := make(map[vastu.Direction]bool)
	for d, ds := range directions {
		if ds.Score < 70 {
			weak[d] = true
		}
	}
	anyRoomIssue := false
	for _, rs := range rooms {
		if len(rs.Issues) > 0 {
			anyRoomIssue = true
			break
		}
	}

	var out []domain.Remedy
	seen := make(map[string]bool)
	for _, rule := range catalog {
		if !rule.Active {
			continue
		}
		triggered := (rule.Direction != "" && weak[rule.Direction]) ||
			(rule.Direction == "" && anyRoomIssue && rule.RoomType != "")
		if !triggered {
			continue
		}
		for _, desc := range rule.Remedies {
			if seen[desc] {
				continue
			}
			seen[desc] = true
			t := remedyTypeOf(desc)
			out = append(out, domain.Remedy{
				Type:        t,
				Description: desc,
				Priority:    rule.Importance.Weight(),
				Cost:        costOf(t),
				Difficulty:  difficultyOf(t),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Description < out[j].Description
	})
	return out
}

func remedyTypeOf(desc string) domain.RemedyType {
	l := strings.ToLower(desc)
	switch {
	case strings.Contains(l, "mirror"):
		return domain.RemedyMirror
	case strings.Contains(l, "color"), strings.Contains(l, "paint"):
		return domain.RemedyColor
	case strings.Contains(l, "plant"), strings.Contains(l, "tulsi"):
		return domain.RemedyPlant
	case strings.Contains(l, "yantra"), strings.Contains(l, "pyramid"):
		return domain.RemedyYantra
	default:
		return domain.RemedyStructural
	}
}

func costOf(t domain.RemedyType) domain.Tier {
	if t == domain.RemedyStructural {
		return domain.TierHigh
	}
	return domain.TierLow
}

func difficultyOf(t domain.RemedyType) domain.Tier {
	switch t {
	case domain.RemedyStructural:
		return domain.TierHigh
	case domain.RemedyColor:
		return domain.TierMedium
	default:
		return domain.TierLow
	}
}

func overallScore(directions map[vastu.Direction]domain.DirectionScore, elements map[vastu.Element]domain.ElementScore, rooms []domain.RoomScore) float64 {
	var dirSum float64
	for _, ds := range directions {
		dirSum += ds.Score
	}
	dirAvg := dirSum / float64(len(directions))

	var elSum float64
	for _, es := range elements {
		elSum += es.Score
	}
	elAvg := elSum / float64(len(elements))

	roomAvg := 70.0
	if len(rooms) > 0 {
		var sum float64
		for _, rs := range rooms {
			sum += rs.Score
		}
		roomAvg = sum / float64(len(rooms))
	}

	overall := 0.5*dirAvg + 0.3*roomAvg + 0.2*elAvg
	return math.Round(clamp(overall)*10) / 10
}

func summary(overall float64, rooms []domain.RoomScore) string {
	issues := 0
	for _, rs := range rooms {
		issues += len(rs.Issues)
	}
	grade := "needs significant correction"
	switch {
	case overall >= 85:
		grade = "strongly aligned"
	case overall >= 70:
		grade = "broadly favorable"
	case overall >= 55:
		grade = "mixed, with correctable weaknesses"
	}
	return fmt.Sprintf("Overall vastu compliance %.1f/100 (%s); %d room(s) assessed, %d issue(s) found.",
		overall, grade, len(rooms), issues)
}

func contains(list []vastu.Direction, d vastu.Direction) bool {
	for _, v := range list {
		if v == d {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
