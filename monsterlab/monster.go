// Package monsterlab generates synthetic monsters labelled with a rarity rank.
// Health, Energy and Sanity grow with level and rarity, so the rank can be
// learned from the numeric attributes.
package monsterlab

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

// TargetColumn is the label the rarity model predicts.
const TargetColumn = "Rarity"

// Columns is the attribute order of a generated record.
var Columns = []string{"Name", "Type", "Level", "Rarity", "Damage", "Health", "Energy", "Sanity", "Timestamp"}

// FeatureColumns are the numeric attributes the rarity classifier uses.
var FeatureColumns = []string{"Level", "Health", "Energy", "Sanity"}

// Types lists the monster types a Generator draws from.
var Types = []string{
	"Demonic", "Devilkin", "Dragon", "Elemental", "Fey",
	"Giant", "Humanoid", "Undead", "Beast", "Construct",
}

// rankWeights makes higher ranks rarer.
var rankWeights = []int{32, 24, 16, 12, 10, 6}

var diceSides = []int{4, 6, 8, 10, 12, 20}

var syllables = []string{
	"gri", "zzle", "fang", "mor", "doth", "kra", "vek", "sha", "lun", "bal",
	"thar", "ix", "og", "ra", "nim", "bor", "quel", "zar", "ul", "wyn",
}

var epithets = []string{
	"the Cruel", "the Pale", "of Ash", "the Hungry", "of the Deep",
	"the Unbroken", "of Thorns", "the Silent",
}

// Monster is one generated creature.
type Monster struct {
	Name      string
	Type      string
	Level     int
	Rarity    string
	Damage    string
	Health    float64
	Energy    float64
	Sanity    float64
	Timestamp string
}

// ToRecord renders the monster as a store document.
func (m Monster) ToRecord() table.Record {
	return table.Record{
		"Name":      m.Name,
		"Type":      m.Type,
		"Level":     m.Level,
		"Rarity":    m.Rarity,
		"Damage":    m.Damage,
		"Health":    m.Health,
		"Energy":    m.Energy,
		"Sanity":    m.Sanity,
		"Timestamp": m.Timestamp,
	}
}

// Generator is not safe for concurrent use.
type Generator struct {
	rnd   *rand.Rand
	title cases.Caser
	now   func() time.Time
}

// NewGenerator returns a generator whose output is fixed by seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		title: cases.Title(language.English),
		now:   time.Now,
	}
}

func (g *Generator) Monster() Monster {
	rank := g.rank()
	level := 1 + g.rnd.Intn(20)
	scale := float64(level) * (1 + 0.75*float64(rank))

	dice := 1 + level/5
	damage := fmt.Sprintf("%dd%d", dice, diceSides[rank])
	if rank > 0 {
		damage += fmt.Sprintf("+%d", rank)
	}

	return Monster{
		Name:      g.name(),
		Type:      Types[g.rnd.Intn(len(Types))],
		Level:     level,
		Rarity:    fmt.Sprintf("Rank %d", rank),
		Damage:    damage,
		Health:    round2(scale * (4 + 2*g.rnd.Float64())),
		Energy:    round2(scale * (3 + 2*g.rnd.Float64())),
		Sanity:    round2(scale * (2 + 2*g.rnd.Float64())),
		Timestamp: g.now().Format(table.TimeLayout),
	}
}

// GenerateOne returns a new monster in record form.
func (g *Generator) GenerateOne() table.Record {
	return g.Monster().ToRecord()
}

func (g *Generator) rank() int {
	total := 0
	for _, w := range rankWeights {
		total += w
	}
	pick := g.rnd.Intn(total)
	for rank, w := range rankWeights {
		if pick < w {
			return rank
		}
		pick -= w
	}
	return len(rankWeights) - 1
}

func (g *Generator) name() string {
	parts := 2 + g.rnd.Intn(2)
	var b strings.Builder
	for i := 0; i < parts; i++ {
		b.WriteString(syllables[g.rnd.Intn(len(syllables))])
	}
	name := b.String()
	if g.rnd.Intn(3) == 0 {
		name += " " + epithets[g.rnd.Intn(len(epithets))]
	}
	return g.title.String(name)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
